package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"storefront_app/internal/models"
)

const (
	historySuccess         = "success"
	historyFailure         = "failure"
	historyHandlerNotFound = "handler_not_found"
)

// Executor picks up due tasks and records every attempt in scheduled_task_histories
type Executor struct {
	db       *gorm.DB
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewExecutor(db *gorm.DB, registry *Registry) *Executor {
	return &Executor{
		db:       db,
		registry: registry,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Executor) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// ProcessDue runs every active task whose due time has passed and reports how many ran
func (e *Executor) ProcessDue(ctx context.Context) (int, error) {
	var pending []models.ScheduledTask
	if err := e.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, e.now()).
		Order("due, id").
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}

	ran := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		e.Execute(ctx, task)
		ran++
	}
	return ran, nil
}

// Execute runs a task, retrying in place up to MaxAttempt times, then moves it to its next state
func (e *Executor) Execute(ctx context.Context, task models.ScheduledTask) {
	log := e.logger.With("task", task.TaskName, "task_id", task.ID)

	handler, found := e.registry.Get(task.TaskName)
	if !found {
		log.ErrorContext(ctx, "task handler not found, marking as failure")
		now := e.now()
		e.record(ctx, task, now, 0, historyHandlerNotFound, 1, map[string]interface{}{"error": "handler not found"})
		e.update(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		return
	}

	attempts := task.MaxAttempt
	if attempts < 1 {
		attempts = 1
	}

	var (
		startTime time.Time
		err       error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		startTime = e.now()
		var result map[string]interface{}
		result, err = handler(ctx, e.db, task)
		runtimeMs := int(e.now().Sub(startTime).Milliseconds())

		if err == nil {
			e.record(ctx, task, startTime, runtimeMs, historySuccess, attempt, result)
			log.InfoContext(ctx, "task completed", "attempt", attempt)
			break
		}
		e.record(ctx, task, startTime, runtimeMs, historyFailure, attempt, map[string]interface{}{"error": err.Error()})
		log.WarnContext(ctx, "task attempt failed", "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			break
		}
	}

	updates := map[string]interface{}{"last_run": &startTime}
	switch {
	case err != nil:
		updates["status"] = models.ScheduledTaskStatusFailure
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		// next occurrence after now, so a worker that was down does not replay missed runs
		next := task.NextDue(e.now())
		if next.After(task.Due) {
			updates["due"] = next
		} else {
			updates["status"] = models.ScheduledTaskStatusDone
		}
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}
	e.update(ctx, task, updates)
}

func (e *Executor) record(ctx context.Context, task models.ScheduledTask, runAt time.Time, runtimeMs int, status string, attempt int, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		RuntimeMs:       runtimeMs,
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := e.db.WithContext(context.WithoutCancel(ctx)).Create(&history).Error; err != nil {
		e.logger.ErrorContext(ctx, "failed to record task history", "task_id", task.ID, "err", err)
	}
}

func (e *Executor) update(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) {
	if err := e.db.WithContext(context.WithoutCancel(ctx)).Model(&models.ScheduledTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		e.logger.ErrorContext(ctx, "failed to update task", "task_id", task.ID, "err", err)
	}
}
