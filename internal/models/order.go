package models

import "time"

// DeliveryStatus tracks fulfilment after an order is placed
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusConfirmed DeliveryStatus = "confirmed"
	DeliveryStatusShipped   DeliveryStatus = "shipped"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

var deliveryEdges = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending:   {DeliveryStatusConfirmed, DeliveryStatusCancelled},
	DeliveryStatusConfirmed: {DeliveryStatusShipped, DeliveryStatusCancelled},
	DeliveryStatusShipped:   {DeliveryStatusDelivered},
}

// CanTransition reports whether from -> to is a valid delivery edge
func (from DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	for _, next := range deliveryEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod is how an order is paid for
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

// OrderPaymentStatus is the payment block status shown on an order
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending OrderPaymentStatus = "pending"
	OrderPaymentStatusPaid    OrderPaymentStatus = "paid"
)

// CustomerInfo is informational only, never used as identity
type CustomerInfo struct {
	Name  string `gorm:"type:varchar(255)" json:"name" validate:"required,max=255"`
	Phone string `gorm:"type:varchar(50)" json:"phone" validate:"required,min=6,max=20"`
	Email string `gorm:"type:varchar(255)" json:"email,omitempty" validate:"omitempty,email"`
}

// ShippingAddress is snapshotted with the order
type ShippingAddress struct {
	Line1      string `json:"line1" validate:"required,max=500"`
	Line2      string `json:"line2,omitempty" validate:"max=500"`
	City       string `json:"city,omitempty" validate:"max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"max=20"`
}

// OrderItem is a line item snapshot, independent of later catalog changes
type OrderItem struct {
	ProductID    uint   `json:"product_id,omitempty"`
	Name         string `json:"name"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	ImageURL     string `json:"image_url,omitempty"`
	Subtotal     int64  `json:"subtotal"`
	ClientPriced bool   `json:"client_priced,omitempty"`
}

// OrderSnapshot is what a checkout captures before payment completes
type OrderSnapshot struct {
	Customer CustomerInfo    `json:"customer"`
	Address  ShippingAddress `json:"address"`
	Items    []OrderItem     `json:"items"`
	Notes    string          `json:"notes,omitempty"`
}

// OrderPayment is the payment block of an order record
type OrderPayment struct {
	Method           PaymentMethod      `gorm:"type:varchar(20)" json:"method"`
	Status           OrderPaymentStatus `gorm:"type:varchar(20)" json:"status"`
	TotalAmount      int64              `json:"total_amount"`
	CommissionAmount int64              `json:"commission_amount"`
	SellerAmount     int64              `json:"seller_amount"`
	Currency         string             `gorm:"type:varchar(3)" json:"currency"`
}

// Order is a placed order owned by a tenant, keyed by (tenant_id, order_id)
type Order struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	TenantID      uint   `gorm:"uniqueIndex:idx_orders_tenant_order,priority:1;not null" json:"tenant_id"`
	OrderID       string `gorm:"type:varchar(64);uniqueIndex:idx_orders_tenant_order,priority:2;not null" json:"order_id"`
	TransactionID *uint  `gorm:"uniqueIndex" json:"transaction_id,omitempty"`

	Customer  CustomerInfo    `gorm:"embedded;embeddedPrefix:customer_" json:"customer"`
	Address   ShippingAddress `gorm:"serializer:json" json:"address"`
	Items     []OrderItem     `gorm:"serializer:json" json:"items"`
	ItemCount int             `json:"item_count"`
	Notes     string          `gorm:"type:text" json:"notes,omitempty"`

	Payment        OrderPayment   `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	DeliveryStatus DeliveryStatus `gorm:"type:varchar(20);index" json:"delivery_status"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
