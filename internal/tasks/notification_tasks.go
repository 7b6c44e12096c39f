package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront_app/internal/models"
	"storefront_app/internal/services"
)

const (
	notifyMaxAttempt = 3
	notifyRetryDelay = 5 * time.Minute
)

// NotifyOrderArgs defines the arguments for an order notification task
type NotifyOrderArgs struct {
	TenantID     uint   `json:"tenant_id"`
	OrderID      string `json:"order_id"`
	AttemptCount int    `json:"attempt_count"`
}

// NotifyTenantOrderTaskDef tells a store owner about a new order on their preferred channel
type NotifyTenantOrderTaskDef struct {
	WhatsApp services.WhatsAppSender
	Email    services.EmailSender
	Logger   *slog.Logger
	Now      func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *NotifyTenantOrderTaskDef) TaskID() string {
	return "notify_tenant_order"
}

// CreateTask builds a ScheduledTask record for this task
func (t *NotifyTenantOrderTaskDef) CreateTask(args NotifyOrderArgs, due time.Time) (*models.ScheduledTask, error) {
	// retries are scheduled as new tasks, so the executor runs each one once
	return BuildScheduledTask(t.TaskID(), args, due, nil, models.ScheduledTaskTypeOneTime, 1)
}

// EnqueueOrderNotification schedules the owner notification on the order's own DB transaction,
// so it exists exactly when the order does
func EnqueueOrderNotification(tx *gorm.DB, tenant models.Tenant, order models.Order) error {
	if tenant.NotifyChannel == models.NotificationChannelNone || tenant.NotifyChannel == "" {
		return nil
	}
	task, err := NotifyTenantOrderTask.CreateTask(NotifyOrderArgs{TenantID: tenant.ID, OrderID: order.OrderID}, time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Create(task).Error
}

// HandleExecution sends the notification. A failed send is rescheduled as a new task until the
// attempt budget is spent.
func (t *NotifyTenantOrderTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args NotifyOrderArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, err
	}

	var tenant models.Tenant
	if err := db.WithContext(ctx).Unscoped().First(&tenant, args.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]interface{}{"status": "skipped", "reason": "tenant not found"}, nil
		}
		return nil, err
	}

	var order models.Order
	if err := db.WithContext(ctx).Where("tenant_id = ? AND order_id = ?", args.TenantID, args.OrderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]interface{}{"status": "skipped", "reason": "order not found"}, nil
		}
		return nil, err
	}

	log := t.Logger.With("tenant_id", tenant.ID, "order_id", order.OrderID, "channel", tenant.NotifyChannel)

	var sendErr error
	switch tenant.NotifyChannel {
	case models.NotificationChannelWhatsapp:
		target := tenant.WhatsApp
		if target == "" {
			target = tenant.Phone
		}
		if t.WhatsApp == nil {
			sendErr = errors.New("whatsapp sender not configured")
			break
		}
		sendErr = t.WhatsApp.SendMessage(ctx, target, orderMessage(tenant, order))
	case models.NotificationChannelEmail:
		if tenant.Email == "" {
			return map[string]interface{}{"status": "skipped", "reason": "no email address"}, nil
		}
		if t.Email == nil {
			sendErr = errors.New("email sender not configured")
			break
		}
		sendErr = t.Email.SendEmail([]string{tenant.Email}, fmt.Sprintf("New order %s", order.OrderID), orderMessage(tenant, order))
	default:
		log.InfoContext(ctx, "order notification disabled")
		return map[string]interface{}{"status": "skipped", "reason": "notifications disabled"}, nil
	}

	if sendErr == nil {
		log.InfoContext(ctx, "order notification sent")
		return map[string]interface{}{"status": "sent", "channel": string(tenant.NotifyChannel)}, nil
	}

	result := map[string]interface{}{"status": "failed", "error": sendErr.Error()}
	if args.AttemptCount+1 >= notifyMaxAttempt {
		log.ErrorContext(ctx, "order notification gave up", "attempts", args.AttemptCount+1, "err", sendErr)
		return result, fmt.Errorf("max attempts reached, failed to notify tenant: %w", sendErr)
	}

	next := args
	next.AttemptCount++
	retry, err := t.CreateTask(next, t.Now().Add(notifyRetryDelay))
	if err != nil {
		return result, err
	}
	if err := db.WithContext(ctx).Create(retry).Error; err != nil {
		return result, fmt.Errorf("failed to create retry task: %w", err)
	}

	log.WarnContext(ctx, "order notification failed, rescheduled", "attempt", next.AttemptCount, "err", sendErr)
	result["retry_task_id"] = retry.ID
	return result, nil
}

// orderMessage renders the owner facing summary of an order
func orderMessage(tenant models.Tenant, order models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order %s for %s\n", order.OrderID, tenant.Name)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "- %s x%d\n", it.Name, it.Quantity)
	}

	payment := "Cash on delivery"
	if order.Payment.Method == models.PaymentMethodOnline {
		payment = "Paid online"
	}
	fmt.Fprintf(&b, "Total: %s %s (%s)\n", order.Payment.Currency, decimal.New(order.Payment.TotalAmount, -2).StringFixed(2), payment)
	fmt.Fprintf(&b, "Customer: %s, %s\n", order.Customer.Name, order.Customer.Phone)

	addr := []string{order.Address.Line1, order.Address.Line2, order.Address.City, order.Address.State, order.Address.PostalCode}
	parts := addr[:0]
	for _, p := range addr {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "Ship to: %s\n", strings.Join(parts, ", "))
	}
	if order.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", order.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotifyTenantOrderTask is the singleton instance, configured by DefineTasks
var NotifyTenantOrderTask = &NotifyTenantOrderTaskDef{}
