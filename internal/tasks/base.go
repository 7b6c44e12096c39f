package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"storefront_app/internal/models"
)

// BuildScheduledTask turns typed task arguments into an active ScheduledTask row. Recurring
// tasks need a valid RRULE; a max attempt below one runs the task once.
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	switch taskType {
	case models.ScheduledTaskTypeOneTime:
		recurringInterval = nil
	case models.ScheduledTaskTypeRecurring:
		if recurringInterval == nil {
			return nil, fmt.Errorf("recurring task %s needs a recurrence rule", taskName)
		}
		if _, err := rrule.StrToRRule(*recurringInterval); err != nil {
			return nil, fmt.Errorf("invalid recurrence rule %q: %w", *recurringInterval, err)
		}
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	mapArgs := map[string]interface{}{}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		if err := json.Unmarshal(raw, &mapArgs); err != nil {
			return nil, fmt.Errorf("task args must encode to a JSON object: %w", err)
		}
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due.UTC(),
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// decodeArgs converts the stored argument map back into a typed struct
func decodeArgs(task models.ScheduledTask, dest interface{}) error {
	raw, err := json.Marshal(task.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal args for %s: %w", task.TaskName, err)
	}
	return nil
}
