package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

// MaxAmount caps any single price and any order total, in minor units
const MaxAmount int64 = 100_000_000_000

// CheckoutItem is a line item as sent by the storefront. Name, UnitPrice and ImageURL are
// display hints; catalog data replaces them whenever the product is known.
type CheckoutItem struct {
	ProductID uint   `json:"productId"`
	Name      string `json:"name" validate:"max=255"`
	UnitPrice int64  `json:"unitPrice" validate:"gte=0,lte=100000000000"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=100"`
	ImageURL  string `json:"imageUrl" validate:"max=2000"`
}

// Catalog resolves checkout items against a tenant's products
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Snapshot prices every item from the catalog and returns the snapshot and its total.
// Unknown items are rejected unless allowClientPrices is set, in which case the client's
// price is used and the item is flagged.
func (c *Catalog) Snapshot(ctx context.Context, tenantID uint, items []CheckoutItem, allowClientPrices bool) ([]models.OrderItem, int64, error) {
	if len(items) == 0 {
		return nil, 0, apperr.ValidationFields("no line items", map[string]string{"items": "is required"})
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.ProductID != 0 {
			ids = append(ids, it.ProductID)
		}
	}

	products := make(map[uint]models.Product, len(ids))
	if len(ids) > 0 {
		var found []models.Product
		if err := c.db.WithContext(ctx).
			Where("tenant_id = ? AND is_active = ? AND id IN ?", tenantID, true, ids).
			Find(&found).Error; err != nil {
			return nil, 0, apperr.Internal(err)
		}
		for _, p := range found {
			products[p.ID] = p
		}
	}

	snapshot := make([]models.OrderItem, 0, len(items))
	var total int64
	for i, it := range items {
		var line models.OrderItem
		if p, ok := products[it.ProductID]; ok {
			line = models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				UnitPrice: p.Price,
				ImageURL:  p.ImageURL,
			}
		} else if allowClientPrices && it.Name != "" && it.UnitPrice > 0 {
			line = models.OrderItem{
				ProductID:    it.ProductID,
				Name:         it.Name,
				UnitPrice:    it.UnitPrice,
				ImageURL:     it.ImageURL,
				ClientPriced: true,
			}
		} else {
			key := fmt.Sprintf("items[%d]", i)
			return nil, 0, apperr.ValidationFields("some items are not available", map[string]string{key: "is not available"})
		}

		if line.UnitPrice > MaxAmount || (line.UnitPrice > 0 && int64(it.Quantity) > (MaxAmount-total)/line.UnitPrice) {
			return nil, 0, apperr.ValidationFields("order total is too large", map[string]string{"items": "total exceeds the maximum amount"})
		}

		line.Quantity = it.Quantity
		line.Subtotal = line.UnitPrice * int64(it.Quantity)
		total += line.Subtotal
		snapshot = append(snapshot, line)
	}

	if total <= 0 {
		return nil, 0, apperr.ValidationFields("order total must be positive", map[string]string{"items": "total must be positive"})
	}
	return snapshot, total, nil
}

// ItemCount sums quantities across a snapshot
func ItemCount(items []models.OrderItem) int {
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return count
}
