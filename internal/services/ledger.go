package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

// OrderNotifier is called inside the DB transaction that inserts a new order, so work it
// enqueues commits or rolls back together with the order.
type OrderNotifier func(tx *gorm.DB, tenant models.Tenant, order models.Order) error

// NewOrderID returns a time-ordered id with a random suffix: "ord_" + UUIDv7 hex
func NewOrderID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate order id: %w", err)
	}
	return "ord_" + strings.ReplaceAll(id.String(), "-", ""), nil
}

func findTenantBySlug(ctx context.Context, db *gorm.DB, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := db.WithContext(ctx).Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("store not found")
		}
		return nil, apperr.Internal(err)
	}
	return &tenant, nil
}

func findTenantByID(ctx context.Context, db *gorm.DB, id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("store not found")
		}
		return nil, apperr.Internal(err)
	}
	return &tenant, nil
}

// insertOrder inserts an order keyed by (tenant_id, order_id) and, for online orders, by
// transaction_id. It reports false when the order already exists; the notifier runs only
// for a fresh insert.
func insertOrder(ctx context.Context, tx *gorm.DB, tenant models.Tenant, order *models.Order, notify OrderNotifier) (bool, error) {
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if notify != nil {
		if err := notify(tx, tenant, *order); err != nil {
			return false, fmt.Errorf("failed to enqueue order notification: %w", err)
		}
	}
	return true, nil
}

// transitionTransaction moves a transaction from one status to another only if it is still
// in the expected status. It reports whether this call made the change.
func transitionTransaction(ctx context.Context, db *gorm.DB, id uint, from, to models.TransactionStatus, updates map[string]interface{}) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("transition %s->%s not allowed", from, to)
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// markFailed moves a pending transaction to failed with a reason
func markFailed(ctx context.Context, db *gorm.DB, id uint, reason string) (bool, error) {
	return transitionTransaction(ctx, db, id, models.TransactionStatusPending, models.TransactionStatusFailed, map[string]interface{}{
		"failure_reason": reason,
	})
}

// ExpireStalePending fails every pending transaction created before now-ttl and returns the
// expired rows.
func ExpireStalePending(ctx context.Context, db *gorm.DB, ttl time.Duration, now time.Time) ([]models.Transaction, error) {
	cutoff := now.Add(-ttl)

	var stale []models.Transaction
	if err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff).
		Order("id").
		Limit(500).
		Find(&stale).Error; err != nil {
		return nil, err
	}

	expired := make([]models.Transaction, 0, len(stale))
	for _, t := range stale {
		ok, err := markFailed(ctx, db, t.ID, models.FailureReasonExpired)
		if err != nil {
			return expired, err
		}
		if ok {
			t.Status = models.TransactionStatusFailed
			reason := models.FailureReasonExpired
			t.FailureReason = &reason
			expired = append(expired, t)
		}
	}
	return expired, nil
}

// PublishExpired announces transactions failed by the expiry sweep
func PublishExpired(ctx context.Context, logger *slog.Logger, pub Publisher, expired []models.Transaction, at time.Time) {
	for _, t := range expired {
		publishBestEffort(ctx, logger, pub, TopicPaymentFailed, t.InternalOrderID, paymentEventFrom(t, "expiry", at))
	}
}

func paymentEventFrom(t models.Transaction, source string, at time.Time) PaymentEvent {
	ev := PaymentEvent{
		TransactionID:     t.ID,
		InternalOrderID:   t.InternalOrderID,
		TenantID:          t.TenantID,
		Status:            string(t.Status),
		TotalAmount:       t.TotalAmount,
		CommissionAmount:  t.CommissionAmount,
		SellerAmount:      t.SellerAmount,
		CommissionPercent: t.CommissionPercent.String(),
		Currency:          t.Currency,
		Source:            source,
		OccurredAt:        at,
	}
	if t.GatewayOrderID != nil {
		ev.GatewayOrderID = *t.GatewayOrderID
	}
	if t.GatewayPaymentID != nil {
		ev.GatewayPaymentID = *t.GatewayPaymentID
	}
	if t.FailureReason != nil {
		ev.Reason = *t.FailureReason
	}
	return ev
}

func orderPlacedEventFrom(o models.Order, at time.Time) OrderPlacedEvent {
	return OrderPlacedEvent{
		TenantID:      o.TenantID,
		OrderID:       o.OrderID,
		TransactionID: o.TransactionID,
		PaymentMethod: string(o.Payment.Method),
		TotalAmount:   o.Payment.TotalAmount,
		ItemCount:     o.ItemCount,
		OccurredAt:    at,
	}
}

func orderEventKey(o models.Order) string {
	return fmt.Sprintf("%d:%s", o.TenantID, o.OrderID)
}
