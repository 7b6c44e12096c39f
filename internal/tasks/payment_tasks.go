package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"storefront_app/internal/models"
	"storefront_app/internal/services"
)

// DefaultExpiryRule runs the expiry sweep every five minutes
const DefaultExpiryRule = "FREQ=MINUTELY;INTERVAL=5"

// ExpirePendingTaskDef fails pending transactions whose intent has outlived the TTL
type ExpirePendingTaskDef struct {
	TTL       time.Duration
	Publisher services.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// TaskID returns the unique identifier for this task
func (t *ExpirePendingTaskDef) TaskID() string {
	return "expire_pending_transactions"
}

// CreateTask builds the recurring ScheduledTask record for this task
func (t *ExpirePendingTaskDef) CreateTask(start time.Time, rule string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, start, &rule, models.ScheduledTaskTypeRecurring, 1)
}

// HandleExecution runs one sweep
func (t *ExpirePendingTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	now := t.Now()
	expired, err := services.ExpireStalePending(ctx, db, t.TTL, now)
	if err != nil {
		return nil, fmt.Errorf("expiry sweep failed after %d rows: %w", len(expired), err)
	}

	services.PublishExpired(ctx, t.Logger, t.Publisher, expired, now)
	if len(expired) > 0 {
		t.Logger.InfoContext(ctx, "expired stale payment intents", "count", len(expired))
	}

	return map[string]interface{}{
		"expired": len(expired),
		"cutoff":  now.Add(-t.TTL).Format(time.RFC3339),
	}, nil
}

// EnsureRecurringTasks schedules the expiry sweep unless an active one already exists
func EnsureRecurringTasks(ctx context.Context, db *gorm.DB, def *ExpirePendingTaskDef, rule string) error {
	var existing models.ScheduledTask
	err := db.WithContext(ctx).
		Where("task_name = ? AND status = ?", def.TaskID(), models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	task, err := def.CreateTask(def.Now(), rule)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(task).Error
}
