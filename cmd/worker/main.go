package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront_app/internal/config"
	"storefront_app/internal/services"
	"storefront_app/internal/tasks"
)

const tickInterval = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Initialize Database
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL not set")
		os.Exit(1)
	}
	db, err := services.InitDB(cfg.DatabaseURL, cfg.DBDebug)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}

	var publisher services.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := services.NewKafkaPublisher(cfg.KafkaBrokers, 5)
		if err != nil {
			logger.Error("failed to connect to kafka", "err", err)
			os.Exit(1)
		}
		kafka.SetLogger(logger)
		publisher = kafka
	} else {
		publisher = services.NewLogPublisher(logger)
	}
	defer publisher.Close()

	deps := tasks.Dependencies{
		IntentTTL: cfg.OrderIntentTTL,
		Publisher: publisher,
		WhatsApp:  services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey),
		Logger:    logger,
	}
	email := services.NewEmailService(services.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
	})
	if email.Configured() {
		deps.Email = email
	} else {
		logger.Warn("SMTP not configured, email notifications will fail")
	}

	// Initialize Task Registry
	tasks.DefineTasks(tasks.GlobalRegistry, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tasks.EnsureRecurringTasks(ctx, db, tasks.ExpirePendingTask, tasks.DefaultExpiryRule); err != nil {
		logger.Error("failed to schedule recurring tasks", "err", err)
		os.Exit(1)
	}

	executor := tasks.NewExecutor(db, tasks.GlobalRegistry)
	executor.SetLogger(logger)

	logger.Info("worker started", "tick", tickInterval.String(), "tasks", tasks.GlobalRegistry.Names())

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	runOnce(ctx, logger, executor)
	for {
		select {
		case <-ticker.C:
			runOnce(ctx, logger, executor)
		case <-ctx.Done():
			logger.Info("shutting down worker")
			return
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, executor *tasks.Executor) {
	ran, err := executor.ProcessDue(ctx)
	if err != nil {
		logger.Error("error processing scheduled tasks", "err", err)
		return
	}
	if ran > 0 {
		logger.Info("processed scheduled tasks", "count", ran)
	}
}
