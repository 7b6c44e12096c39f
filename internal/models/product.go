package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a catalog entry; Price is in minor currency units
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TenantID uint   `gorm:"index;not null" json:"tenant_id"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `gorm:"type:text" json:"image_url"`
	IsActive bool   `json:"is_active"`
}
