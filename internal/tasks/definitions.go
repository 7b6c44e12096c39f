package tasks

import (
	"log/slog"
	"time"

	"storefront_app/internal/services"
)

// Dependencies are the collaborators task handlers need
type Dependencies struct {
	IntentTTL time.Duration
	Publisher services.Publisher
	WhatsApp  services.WhatsAppSender
	Email     services.EmailSender
	Logger    *slog.Logger
	Now       func() time.Time
}

// ExpirePendingTask is the singleton instance, configured by DefineTasks
var ExpirePendingTask = &ExpirePendingTaskDef{}

// DefineTasks configures the task singletons and registers them on the registry
func DefineTasks(registry *Registry, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	*ExpirePendingTask = ExpirePendingTaskDef{
		TTL:       deps.IntentTTL,
		Publisher: deps.Publisher,
		Logger:    deps.Logger,
		Now:       deps.Now,
	}
	registry.Register(ExpirePendingTask.TaskID(), ExpirePendingTask.HandleExecution)

	*NotifyTenantOrderTask = NotifyTenantOrderTaskDef{
		WhatsApp: deps.WhatsApp,
		Email:    deps.Email,
		Logger:   deps.Logger,
		Now:      deps.Now,
	}
	registry.Register(NotifyTenantOrderTask.TaskID(), NotifyTenantOrderTask.HandleExecution)
}
