package models

import (
	"time"

	"gorm.io/gorm"
)

// TenantStatus is a soft lifecycle state; tenants are never hard-deleted
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// NotificationChannel selects how a tenant hears about new orders
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsapp NotificationChannel = "whatsapp"
	NotificationChannelNone     NotificationChannel = "none"
)

// PaymentMethods lists which checkout paths a tenant accepts
type PaymentMethods struct {
	COD    bool `json:"cod"`
	Online bool `json:"online"`
}

// Tenant represents a registered business and its storefront
type Tenant struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Slug     string       `gorm:"type:varchar(100);uniqueIndex" json:"slug"`
	Name     string       `gorm:"type:varchar(255)" json:"name"`
	Phone    string       `gorm:"type:varchar(50)" json:"phone"`
	WhatsApp string       `gorm:"type:varchar(50)" json:"whatsapp"`
	Email    string       `gorm:"type:varchar(255)" json:"email"`
	OwnerUID string       `gorm:"type:varchar(128);index" json:"-"`
	Status   TenantStatus `gorm:"type:varchar(20)" json:"status"`

	PaymentMethods PaymentMethods      `gorm:"serializer:json" json:"payment_methods"`
	NotifyChannel  NotificationChannel `gorm:"type:varchar(20)" json:"notify_channel"`

	// Gateway credentials are stored in the vault's tagged ciphertext format
	GatewayEnabled   bool    `json:"gateway_enabled"`
	GatewayKeyID     *string `gorm:"type:text" json:"-"`
	GatewayKeySecret *string `gorm:"type:text" json:"-"`
}

// ContactChannel is the number a customer should use to follow up on an order
func (t Tenant) ContactChannel() string {
	if t.WhatsApp != "" {
		return t.WhatsApp
	}
	return t.Phone
}

// AcceptsOnline reports whether online checkout is switched on for the tenant
func (t Tenant) AcceptsOnline() bool {
	return t.Status == TenantStatusActive && t.GatewayEnabled && t.PaymentMethods.Online
}

// AcceptsCOD reports whether cash on delivery is switched on for the tenant
func (t Tenant) AcceptsCOD() bool {
	return t.Status == TenantStatusActive && t.PaymentMethods.COD
}

// HasGatewayCredentials reports whether both sealed credential fields are present
func (t Tenant) HasGatewayCredentials() bool {
	return t.GatewayKeyID != nil && *t.GatewayKeyID != "" &&
		t.GatewayKeySecret != nil && *t.GatewayKeySecret != ""
}
