package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/pkg/enums"
)

// WebhookEvent is the audit record of one signature-verified delivery.
type WebhookEvent struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider     enums.WebhookProvider `gorm:"column:provider;not null"`
	EventType    string                `gorm:"column:event_type;not null"`
	PayloadHash  string                `gorm:"column:payload_hash;not null;index"`
	ProfileID    *string               `gorm:"column:profile_id"`
	CustomerCode *string               `gorm:"column:customer_code"`
	Outcome      enums.WebhookOutcome  `gorm:"column:outcome;not null"`
	Error        *string               `gorm:"column:error"`
	ReceivedAt   time.Time             `gorm:"column:received_at;not null"`
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
