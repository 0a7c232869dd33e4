package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/pkg/enums"
)

// Subscription persists the Paystack subscription state of one shop profile.
type Subscription struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProfileID        string                   `gorm:"column:profile_id;not null;uniqueIndex" json:"profile_id"`
	CustomerCode     string                   `gorm:"column:customer_code;not null;index" json:"customer_code"`
	SubscriptionCode *string                  `gorm:"column:subscription_code" json:"subscription_code"`
	EmailToken       *string                  `gorm:"column:email_token" json:"email_token"`
	PlanCode         string                   `gorm:"column:plan_code;not null" json:"plan_code"`
	Status           enums.SubscriptionStatus `gorm:"column:status;not null;check:status IN ('pending','active','cancelled','inactive')" json:"status"`
	NextPaymentDate  *time.Time               `gorm:"column:next_payment_date" json:"next_payment_date"`
	Version          int64                    `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
