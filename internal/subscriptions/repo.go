package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/bioshop-backend/pkg/db"
	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
)

// Repository handles subscription persistence. Every write bumps version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProfileID(ctx context.Context, profileID string) (*models.Subscription, error)
	LockByProfileID(ctx context.Context, profileID string) (*models.Subscription, error)
	LockByCustomerCode(ctx context.Context, customerCode string) ([]models.Subscription, error)
	UpsertCheckout(ctx context.Context, input CheckoutUpsert) error
	UpsertActivation(ctx context.Context, input ActivationUpsert) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, expectedVersion int64) (bool, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error)
}

// CheckoutUpsert is written when a hosted checkout is created.
type CheckoutUpsert struct {
	ProfileID    string
	CustomerCode string
	EmailToken   string
	PlanCode     string
	Status       enums.SubscriptionStatus
}

// ActivationUpsert is written when the provider confirms payment. Nil codes
// leave the stored value untouched on update.
type ActivationUpsert struct {
	ProfileID        string
	CustomerCode     *string
	SubscriptionCode *string
	PlanCode         string
	Status           enums.SubscriptionStatus
	NextPaymentDate  *time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByProfileID(ctx context.Context, profileID string) (*models.Subscription, error) {
	return r.findByProfileID(r.db.WithContext(ctx), profileID)
}

func (r *repository) LockByProfileID(ctx context.Context, profileID string) (*models.Subscription, error) {
	return r.findByProfileID(dbpkg.LockForUpdate(r.db.WithContext(ctx), false), profileID)
}

func (r *repository) findByProfileID(q *gorm.DB, profileID string) (*models.Subscription, error) {
	var rows []models.Subscription
	if err := q.Where("profile_id = ?", profileID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) LockByCustomerCode(ctx context.Context, customerCode string) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := dbpkg.LockForUpdate(r.db.WithContext(ctx), false).
		Where("customer_code = ?", customerCode).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpsertCheckout(ctx context.Context, input CheckoutUpsert) error {
	token := input.EmailToken
	row := models.Subscription{
		ProfileID:    input.ProfileID,
		CustomerCode: input.CustomerCode,
		EmailToken:   &token,
		PlanCode:     input.PlanCode,
		Status:       input.Status,
		Version:      1,
	}
	updates := clause.AssignmentColumns([]string{
		"customer_code", "email_token", "plan_code", "status", "updated_at",
	})
	return r.upsert(ctx, &row, updates)
}

func (r *repository) UpsertActivation(ctx context.Context, input ActivationUpsert) error {
	row := models.Subscription{
		ProfileID:        input.ProfileID,
		SubscriptionCode: input.SubscriptionCode,
		PlanCode:         input.PlanCode,
		Status:           input.Status,
		NextPaymentDate:  input.NextPaymentDate,
		Version:          1,
	}
	columns := []string{"plan_code", "status", "next_payment_date", "updated_at"}
	if input.CustomerCode != nil {
		row.CustomerCode = *input.CustomerCode
		columns = append(columns, "customer_code")
	}
	if input.SubscriptionCode != nil {
		columns = append(columns, "subscription_code")
	}
	return r.upsert(ctx, &row, clause.AssignmentColumns(columns))
}

func (r *repository) upsert(ctx context.Context, row *models.Subscription, updates clause.Set) error {
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("subscriptions.version + 1"),
	})
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}},
			DoUpdates: updates,
		}).
		Create(row).Error
}

// UpdateStatus applies a compare-and-set on version. It reports false when the
// row changed since it was read.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&models.Subscription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
