package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

// Razorpay webhook event types handled by the reconciler
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
	EventRefundProcessed = "refund.processed"
)

// Webhook outcomes reported back to the handler
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookSkipped   = "skipped"
)

var errWebhookSignature = errors.New("webhook signature mismatch")

type razorpayWebhook struct {
	Event     string          `json:"event"`
	CreatedAt int64           `json:"created_at"`
	Payload   razorpayPayload `json:"payload"`
}

type razorpayPayload struct {
	Payment *struct {
		Entity razorpayPayment `json:"entity"`
	} `json:"payment"`
	Refund *struct {
		Entity razorpayRefund `json:"entity"`
	} `json:"refund"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// WebhookResult describes what happened to one delivery
type WebhookResult struct {
	EventID   string `json:"eventId,omitempty"`
	EventType string `json:"eventType"`
	Outcome   string `json:"outcome"`
	Note      string `json:"note,omitempty"`
}

// WebhookService reconciles transactions from gateway pushed events. It authenticates with the
// platform webhook secret, never a tenant secret.
type WebhookService struct {
	db            *gorm.DB
	publisher     Publisher
	notify        OrderNotifier
	secret        string
	allowUnsigned bool
	logger        *slog.Logger
	now           func() time.Time
}

func NewWebhookService(db *gorm.DB, publisher Publisher, secret string, allowUnsigned bool) *WebhookService {
	return &WebhookService{
		db:            db,
		publisher:     publisher,
		secret:        secret,
		allowUnsigned: allowUnsigned,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *WebhookService) SetOrderNotifier(notify OrderNotifier) {
	s.notify = notify
}

// Enabled reports whether deliveries can be accepted at all
func (s *WebhookService) Enabled() bool {
	return s.secret != "" || s.allowUnsigned
}

// webhookEffect is what an applied event changed, published after commit
type webhookEffect struct {
	topic   string
	key     string
	payload interface{}
}

// Handle authenticates and applies one delivery. Only authentication failures, malformed
// bodies and storage errors are returned; anything the platform cannot act on is recorded
// and acknowledged so the gateway stops redelivering it.
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte, signature, eventID string) (*WebhookResult, error) {
	if !s.Enabled() {
		return nil, apperr.Unavailable("webhook processing is disabled")
	}

	if s.secret != "" {
		if !VerifyWebhookSignature(rawBody, signature, s.secret) {
			s.logger.WarnContext(ctx, "webhook signature rejected", "event_id", eventID)
			return nil, apperr.Authenticity(errWebhookSignature)
		}
	} else {
		s.logger.WarnContext(ctx, "processing unsigned webhook, WEBHOOK_ALLOW_UNSIGNED is set", "event_id", eventID)
	}

	var ev razorpayWebhook
	if err := json.Unmarshal(rawBody, &ev); err != nil || ev.Event == "" {
		return nil, apperr.Validation("malformed webhook payload")
	}

	result := &WebhookResult{EventID: eventID, EventType: ev.Event}
	log := s.logger.With("event_id", eventID, "event", ev.Event)

	var effects []webhookEffect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.PaymentCallbackHistory{
			PaymentGateway: models.PaymentGatewayRazorpay,
			EventType:      ev.Event,
			Metadata:       json.RawMessage(rawBody),
		}
		if eventID != "" {
			id := eventID
			record.EventID = &id
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return fmt.Errorf("failed to record webhook event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result.Outcome = WebhookDuplicate
			return nil
		}

		var note string
		var err error
		switch ev.Event {
		case EventPaymentCaptured:
			effects, note, err = s.applyCaptured(ctx, tx, ev)
		case EventPaymentFailed:
			effects, note, err = s.applyFailed(ctx, tx, ev)
		case EventRefundCreated, EventRefundProcessed:
			effects, note, err = s.applyRefund(ctx, tx, ev)
		default:
			result.Outcome = WebhookIgnored
			note = "unhandled event type"
		}
		if err != nil {
			return err
		}

		if result.Outcome == "" {
			result.Outcome = WebhookProcessed
			if note != "" {
				result.Outcome = WebhookSkipped
			}
		}
		result.Note = note

		processedAt := s.now()
		updates := map[string]interface{}{"processed_at": &processedAt}
		if note != "" {
			updates["process_error"] = note
		}
		return tx.Model(&models.PaymentCallbackHistory{}).Where("id = ?", record.ID).Updates(updates).Error
	})
	if err != nil {
		log.ErrorContext(ctx, "webhook apply failed", "err", err)
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	switch result.Outcome {
	case WebhookDuplicate:
		log.InfoContext(ctx, "webhook event deduplicated")
	case WebhookSkipped, WebhookIgnored:
		log.InfoContext(ctx, "webhook event acknowledged without change", "note", result.Note)
	default:
		log.InfoContext(ctx, "webhook event processed")
	}

	for _, e := range effects {
		publishBestEffort(ctx, s.logger, s.publisher, e.topic, e.key, e.payload)
	}
	return result, nil
}

func (s *WebhookService) applyCaptured(ctx context.Context, tx *gorm.DB, ev razorpayWebhook) ([]webhookEffect, string, error) {
	if ev.Payload.Payment == nil || ev.Payload.Payment.Entity.OrderID == "" {
		return nil, "payload has no payment order id", nil
	}
	payment := ev.Payload.Payment.Entity

	txn, err := findTransaction(ctx, tx, "gateway_order_id = ?", payment.OrderID)
	if err != nil || txn == nil {
		return nil, "transaction not found", err
	}
	if payment.Amount != txn.TotalAmount {
		s.logger.ErrorContext(ctx, "captured amount differs from ledger", "order_id", txn.InternalOrderID, "captured", payment.Amount, "expected", txn.TotalAmount)
		return nil, fmt.Sprintf("captured amount %d does not match %d", payment.Amount, txn.TotalAmount), nil
	}

	now := s.now()
	ok, err := transitionTransaction(ctx, tx, txn.ID, models.TransactionStatusPending, models.TransactionStatusCompleted, map[string]interface{}{
		"gateway_payment_id": payment.ID,
		"completed_at":       now,
	})
	if err != nil {
		return nil, "", err
	}
	if !ok {
		if err := tx.First(txn, txn.ID).Error; err != nil {
			return nil, "", err
		}
		if txn.Status == models.TransactionStatusCompleted {
			if txn.GatewayPaymentID != nil && *txn.GatewayPaymentID != payment.ID {
				return nil, "completed with a different payment id", nil
			}
			return nil, "", nil
		}
		return nil, fmt.Sprintf("transition %s->%s not allowed", txn.Status, models.TransactionStatusCompleted), nil
	}

	if err := tx.First(txn, txn.ID).Error; err != nil {
		return nil, "", err
	}
	effects := []webhookEffect{{TopicPaymentCompleted, txn.InternalOrderID, paymentEventFrom(*txn, "webhook", now)}}

	// the customer may never return to verify, so the paid order is recorded here too
	tenant, err := findTenantByID(ctx, tx.Unscoped(), txn.TenantID)
	if err != nil {
		return nil, "", err
	}
	order := onlineOrderFrom(*txn, nil)
	created, err := insertOrder(ctx, tx, *tenant, &order, s.notify)
	if err != nil {
		return nil, "", err
	}
	if created {
		effects = append(effects, webhookEffect{TopicOrderPlaced, orderEventKey(order), orderPlacedEventFrom(order, now)})
	}
	return effects, "", nil
}

func (s *WebhookService) applyFailed(ctx context.Context, tx *gorm.DB, ev razorpayWebhook) ([]webhookEffect, string, error) {
	if ev.Payload.Payment == nil || ev.Payload.Payment.Entity.OrderID == "" {
		return nil, "payload has no payment order id", nil
	}
	payment := ev.Payload.Payment.Entity

	txn, err := findTransaction(ctx, tx, "gateway_order_id = ?", payment.OrderID)
	if err != nil || txn == nil {
		return nil, "transaction not found", err
	}

	ok, err := markFailed(ctx, tx, txn.ID, models.FailureReasonGatewayFailed)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		if err := tx.First(txn, txn.ID).Error; err != nil {
			return nil, "", err
		}
		if txn.Status == models.TransactionStatusFailed {
			return nil, "", nil
		}
		return nil, fmt.Sprintf("transition %s->%s not allowed", txn.Status, models.TransactionStatusFailed), nil
	}

	if err := tx.First(txn, txn.ID).Error; err != nil {
		return nil, "", err
	}
	return []webhookEffect{{TopicPaymentFailed, txn.InternalOrderID, paymentEventFrom(*txn, "webhook", s.now())}}, "", nil
}

func (s *WebhookService) applyRefund(ctx context.Context, tx *gorm.DB, ev razorpayWebhook) ([]webhookEffect, string, error) {
	paymentID := ""
	if ev.Payload.Refund != nil {
		paymentID = ev.Payload.Refund.Entity.PaymentID
	}
	if paymentID == "" && ev.Payload.Payment != nil {
		paymentID = ev.Payload.Payment.Entity.ID
	}
	if paymentID == "" {
		return nil, "payload has no payment id", nil
	}

	txn, err := findTransaction(ctx, tx, "gateway_payment_id = ?", paymentID)
	if err != nil || txn == nil {
		return nil, "transaction not found", err
	}

	now := s.now()
	ok, err := transitionTransaction(ctx, tx, txn.ID, models.TransactionStatusCompleted, models.TransactionStatusRefunded, map[string]interface{}{
		"refunded_at": now,
	})
	if err != nil {
		return nil, "", err
	}
	if !ok {
		if err := tx.First(txn, txn.ID).Error; err != nil {
			return nil, "", err
		}
		if txn.Status == models.TransactionStatusRefunded {
			return nil, "", nil
		}
		return nil, fmt.Sprintf("transition %s->%s not allowed", txn.Status, models.TransactionStatusRefunded), nil
	}

	if err := tx.First(txn, txn.ID).Error; err != nil {
		return nil, "", err
	}
	return []webhookEffect{{TopicPaymentRefunded, txn.InternalOrderID, paymentEventFrom(*txn, "webhook", now)}}, "", nil
}

// findTransaction returns nil, nil when no row matches
func findTransaction(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*models.Transaction, error) {
	var txn models.Transaction
	err := db.WithContext(ctx).Where(query, args...).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
