package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the ledger state of one payment attempt
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// Failure reasons recorded on failed transactions
const (
	FailureReasonGatewayError      = "gateway_error"
	FailureReasonSignatureMismatch = "signature_mismatch"
	FailureReasonExpired           = "expired"
	FailureReasonGatewayFailed     = "gateway_payment_failed"
)

var transactionEdges = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted: {TransactionStatusRefunded},
}

// CanTransition reports whether from -> to is a valid ledger edge
func (from TransactionStatus) CanTransition(to TransactionStatus) bool {
	for _, next := range transactionEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is the platform-owned ledger row for one payment attempt.
// Amounts are integer minor units and CommissionAmount + SellerAmount == TotalAmount.
type Transaction struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	InternalOrderID  string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"internal_order_id"`
	GatewayOrderID   *string           `gorm:"type:varchar(100);uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID *string           `gorm:"type:varchar(100);index" json:"gateway_payment_id"`
	PaymentGateway   PaymentGateway    `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	TenantID         uint              `gorm:"index;not null" json:"tenant_id"`
	Status           TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	FailureReason    *string           `gorm:"type:varchar(100)" json:"failure_reason,omitempty"`

	TotalAmount       int64           `gorm:"not null" json:"total_amount"`
	CommissionAmount  int64           `gorm:"not null" json:"commission_amount"`
	SellerAmount      int64           `gorm:"not null" json:"seller_amount"`
	CommissionPercent decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_percent"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`

	CustomerName  string         `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerPhone string         `gorm:"type:varchar(50)" json:"customer_phone"`
	OrderSnapshot *OrderSnapshot `gorm:"serializer:json" json:"order_snapshot,omitempty"`

	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata,omitempty"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// ExpiredAt reports whether a pending attempt has outlived its validity window
func (t Transaction) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return t.Status == TransactionStatusPending && now.Sub(t.CreatedAt) > ttl
}
