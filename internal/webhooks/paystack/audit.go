package paystackwebhook

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
)

// AuditRepository appends verified deliveries to webhook_events.
type AuditRepository interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
}

// AuditStore is the gorm-backed AuditRepository.
type AuditStore struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (r *AuditStore) Record(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// DeleteReceivedBefore prunes audit rows older than cutoff.
func (r *AuditStore) DeleteReceivedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("received_at < ?", cutoff).Delete(&models.WebhookEvent{})
	return res.RowsAffected, res.Error
}
