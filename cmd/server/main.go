package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storefront_app/internal/config"
	"storefront_app/internal/handlers"
	authMiddleware "storefront_app/internal/middleware"
	"storefront_app/internal/services"
	"storefront_app/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	if err := services.AutoMigrate(db); err != nil {
		logger.Error("failed to run database migrations", "err", err)
		os.Exit(1)
	}

	// Redis backs the store cache and the shared rate limiter; without it each instance limits on its own
	var (
		cache   *services.RedisCache
		limiter authMiddleware.Limiter
	)
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer cache.Close()
		cache.SetLogger(logger)
		limiter = services.NewRedisRateLimiter(cache, cfg.RateLimitPerMinute)
	} else {
		logger.Warn("REDIS_URL not set, using in-process rate limiting and no store cache")
		local := services.NewLocalRateLimiter(cfg.RateLimitPerMinute)
		go local.RunSweeper(ctx, 5*time.Minute)
		limiter = local
	}

	cipher, err := services.NewCredentialCipher(cfg.CredentialsEncryptionKey)
	if err != nil {
		logger.Error("failed to initialize credential cipher", "err", err)
		os.Exit(1)
	}
	vault := services.NewCredentialVault(cipher)

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

	// Initialize Firebase
	routes := handlers.Routes{Logger: logger, Limiter: limiter}
	var issuer handlers.SessionIssuer
	authClient, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		logger.Warn("firebase initialization failed, admin routes will reject every request", "err", err)
	} else {
		routes.Verifier = authClient
		issuer = authClient
	}

	payments := services.NewPaymentService(db, vault, services.NewRazorpayGateway, publisher, services.PaymentConfig{
		CommissionPercent: cfg.CommissionPercent,
		Currency:          cfg.Currency,
		IntentTTL:         cfg.OrderIntentTTL,
		AllowClientPrices: cfg.AllowClientPrices,
	})
	payments.SetLogger(logger)
	payments.SetOrderNotifier(tasks.EnqueueOrderNotification)

	cash := services.NewCashOrderService(db, publisher, cfg.Currency, cfg.AllowClientPrices)
	cash.SetLogger(logger)
	cash.SetOrderNotifier(tasks.EnqueueOrderNotification)

	webhooks := services.NewWebhookService(db, publisher, cfg.WebhookSecret, cfg.WebhookAllowUnsigned)
	webhooks.SetLogger(logger)
	webhooks.SetOrderNotifier(tasks.EnqueueOrderNotification)

	tenants := services.NewTenantService(db, vault, cache)
	tenants.SetLogger(logger)

	routes.Auth = handlers.NewAuthHandler(issuer, strings.HasPrefix(cfg.AppURL, "https://"))
	routes.Checkout = handlers.NewCheckoutHandler(payments, cash)
	routes.Webhooks = handlers.NewWebhookHandler(webhooks)
	routes.Tenants = handlers.NewTenantHandler(tenants)
	routes.Public = handlers.NewPublicHandler(db, tenants)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.NewErrorHandler(logger)
	e.IPExtractor, err = authMiddleware.IPExtractor(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", "err", err)
		os.Exit(1)
	}

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	routes.Register(e)

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
