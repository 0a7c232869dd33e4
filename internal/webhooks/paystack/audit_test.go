package paystackwebhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
)

func TestAuditStoreDeleteReceivedBefore(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.WebhookEvent{}))

	store := NewAuditRepository(db)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{100 * 24 * time.Hour, 91 * 24 * time.Hour, time.Hour} {
		require.NoError(t, store.Record(context.Background(), &models.WebhookEvent{
			Provider:    enums.WebhookProviderPaystack,
			EventType:   string(enums.PaystackEventChargeSuccess),
			PayloadHash: uuid.NewString(),
			Outcome:     enums.WebhookOutcomeApplied,
			ReceivedAt:  now.Add(-age),
		}))
	}

	deleted, err := store.DeleteReceivedBefore(context.Background(), nil, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}
