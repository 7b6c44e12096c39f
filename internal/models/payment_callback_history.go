package models

import (
	"encoding/json"
	"time"
)

type PaymentGateway string

const (
	PaymentGatewayRazorpay PaymentGateway = "razorpay"
	PaymentGatewayManual   PaymentGateway = "manual"
)

// PaymentCallbackHistory stores every authenticated webhook delivery.
// (payment_gateway, event_id) is unique so a redelivered event is applied once.
type PaymentCallbackHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null;uniqueIndex:idx_callback_gateway_event,priority:1" json:"payment_gateway"`
	EventID        *string         `gorm:"type:varchar(100);uniqueIndex:idx_callback_gateway_event,priority:2" json:"event_id"`
	EventType      string          `gorm:"type:varchar(100);index" json:"event_type"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	ProcessedAt    *time.Time      `json:"processed_at"`
	ProcessError   *string         `gorm:"type:text" json:"process_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
