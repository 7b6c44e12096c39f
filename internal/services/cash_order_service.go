package services

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

// CashOrderService records pay-on-delivery orders. No transaction row is written.
type CashOrderService struct {
	db                *gorm.DB
	catalog           *Catalog
	publisher         Publisher
	notify            OrderNotifier
	currency          string
	allowClientPrices bool
	logger            *slog.Logger
	now               func() time.Time
}

func NewCashOrderService(db *gorm.DB, publisher Publisher, currency string, allowClientPrices bool) *CashOrderService {
	return &CashOrderService{
		db:                db,
		catalog:           NewCatalog(db),
		publisher:         publisher,
		currency:          currency,
		allowClientPrices: allowClientPrices,
		logger:            slog.Default(),
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *CashOrderService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *CashOrderService) SetOrderNotifier(notify OrderNotifier) {
	s.notify = notify
}

// CashOrderInput accepts either a single Product or a list of Items
type CashOrderInput struct {
	TenantSlug string                 `json:"tenantId" validate:"required,max=100"`
	Customer   models.CustomerInfo    `json:"customer"`
	Address    models.ShippingAddress `json:"address"`
	Product    *CheckoutItem          `json:"product,omitempty"`
	Items      []CheckoutItem         `json:"items" validate:"max=50,dive"`
	Notes      string                 `json:"notes" validate:"max=1000"`
}

// CashOrderResult is returned after a COD order is placed
type CashOrderResult struct {
	OrderID              string              `json:"orderId"`
	Items                []models.OrderItem  `json:"items"`
	ItemCount            int                 `json:"itemCount"`
	Total                int64               `json:"total"`
	Currency             string              `json:"currency"`
	Payment              models.OrderPayment `json:"payment"`
	TenantContactChannel string              `json:"tenantContactChannel"`
}

// PlaceOrder validates the order, prices it from the catalog and records it as unpaid COD
func (s *CashOrderService) PlaceOrder(ctx context.Context, in CashOrderInput) (*CashOrderResult, error) {
	items := in.Items
	if len(items) == 0 && in.Product != nil {
		items = []CheckoutItem{*in.Product}
		in.Items = items
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.ValidationFields("no line items", map[string]string{"items": "is required"})
	}

	tenant, err := findTenantBySlug(ctx, s.db, in.TenantSlug)
	if err != nil {
		return nil, err
	}
	if !tenant.AcceptsCOD() {
		return nil, apperr.ConfigurationMsg("cash on delivery is not available for this store")
	}

	snapshot, total, err := s.catalog.Snapshot(ctx, tenant.ID, items, s.allowClientPrices)
	if err != nil {
		return nil, err
	}

	orderID, err := NewOrderID()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	order := models.Order{
		TenantID:  tenant.ID,
		OrderID:   orderID,
		Customer:  in.Customer,
		Address:   in.Address,
		Items:     snapshot,
		ItemCount: ItemCount(snapshot),
		Notes:     in.Notes,
		Payment: models.OrderPayment{
			Method:       models.PaymentMethodCOD,
			Status:       models.OrderPaymentStatusPending,
			TotalAmount:  total,
			SellerAmount: total,
			Currency:     s.currency,
		},
		DeliveryStatus: models.DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := insertOrder(ctx, tx, *tenant, &order, s.notify)
		if err != nil {
			return err
		}
		if !created {
			return apperr.Conflict("order id collision, please retry")
		}
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	s.logger.InfoContext(ctx, "cash order placed", "tenant_id", tenant.ID, "order_id", orderID, "total", total)
	publishBestEffort(ctx, s.logger, s.publisher, TopicOrderPlaced, orderEventKey(order), orderPlacedEventFrom(order, now))

	return &CashOrderResult{
		OrderID:              orderID,
		Items:                snapshot,
		ItemCount:            order.ItemCount,
		Total:                total,
		Currency:             s.currency,
		Payment:              order.Payment,
		TenantContactChannel: tenant.ContactChannel(),
	}, nil
}
