package payloads

import (
	"time"

	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	"github.com/google/uuid"
)

// SubscriptionStatusChangedEvent is emitted on every status write, including
// writes that keep the status and only refresh provider fields.
type SubscriptionStatusChangedEvent struct {
	SubscriptionID   uuid.UUID                 `json:"subscription_id"`
	ProfileID        string                    `json:"profile_id"`
	CustomerCode     string                    `json:"customer_code"`
	SubscriptionCode *string                   `json:"subscription_code,omitempty"`
	PlanCode         string                    `json:"plan_code"`
	PreviousStatus   *enums.SubscriptionStatus `json:"previous_status,omitempty"`
	Status           enums.SubscriptionStatus  `json:"status"`
	Trigger          string                    `json:"trigger"`
	NextPaymentDate  *time.Time                `json:"next_payment_date,omitempty"`
	Version          int64                     `json:"version"`
}

// SubscriptionDeletedEvent is emitted when an operator removes a subscription.
type SubscriptionDeletedEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	ProfileID      string                   `json:"profile_id"`
	LastStatus     enums.SubscriptionStatus `json:"last_status"`
}
