package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds every setting the server, worker and CLIs read from the environment
type Config struct {
	Port    string
	AppURL  string
	DBDebug bool

	DatabaseURL             string
	RedisURL                string
	FirebaseCredentialsPath string

	CredentialsEncryptionKey string
	WebhookSecret            string
	WebhookAllowUnsigned     bool

	CommissionPercent decimal.Decimal
	Currency          string
	OrderIntentTTL    time.Duration
	AllowClientPrices bool

	RateLimitPerMinute int
	TrustedProxies     []string
	KafkaBrokers       []string

	WahaBaseURL string
	WahaAPIKey  string
	SMTPHost    string
	SMTPPort    string
	SMTPUser    string
	SMTPPass    string
	EmailFrom   string
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return FromViper(viper.New())
}

// FromViper builds a Config from an already prepared viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_URL", "http://localhost:8080")
	v.SetDefault("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json")
	v.SetDefault("PLATFORM_COMMISSION_PERCENT", "5")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("ORDER_INTENT_TTL", "30m")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("WAHA_BASE_URL", "http://waha:3000")

	percent, err := decimal.NewFromString(v.GetString("PLATFORM_COMMISSION_PERCENT"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_COMMISSION_PERCENT: %w", err)
	}

	ttl, err := time.ParseDuration(v.GetString("ORDER_INTENT_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_INTENT_TTL: %w", err)
	}

	cfg := &Config{
		Port:                     v.GetString("PORT"),
		AppURL:                   strings.TrimRight(v.GetString("APP_URL"), "/"),
		DBDebug:                  v.GetBool("DB_DEBUG"),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		RedisURL:                 v.GetString("REDIS_URL"),
		FirebaseCredentialsPath:  v.GetString("FIREBASE_CREDENTIALS_PATH"),
		CredentialsEncryptionKey: v.GetString("CREDENTIALS_ENCRYPTION_KEY"),
		WebhookSecret:            v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		WebhookAllowUnsigned:     v.GetBool("WEBHOOK_ALLOW_UNSIGNED"),
		CommissionPercent:        percent,
		Currency:                 strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
		OrderIntentTTL:           ttl,
		AllowClientPrices:        v.GetBool("ALLOW_CLIENT_PRICES"),
		RateLimitPerMinute:       v.GetInt("RATE_LIMIT_PER_MINUTE"),
		TrustedProxies:           splitList(v.GetString("TRUSTED_PROXIES")),
		KafkaBrokers:             splitList(v.GetString("KAFKA_BROKERS")),
		WahaBaseURL:              v.GetString("WAHA_BASE_URL"),
		WahaAPIKey:               v.GetString("WAHA_API_KEY"),
		SMTPHost:                 v.GetString("SMTP_HOST"),
		SMTPPort:                 v.GetString("SMTP_PORT"),
		SMTPUser:                 v.GetString("SMTP_USER"),
		SMTPPass:                 v.GetString("SMTP_PASS"),
		EmailFrom:                v.GetString("EMAIL_FROM"),
	}

	return cfg, nil
}

// Validate checks the settings the payment core cannot run without
func (c *Config) Validate() error {
	if c.CommissionPercent.IsNegative() || c.CommissionPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("PLATFORM_COMMISSION_PERCENT must be in [0, 100), got %s", c.CommissionPercent)
	}
	// the ledger stores the percent as decimal(5,2)
	if !c.CommissionPercent.Equal(c.CommissionPercent.Round(2)) {
		return fmt.Errorf("PLATFORM_COMMISSION_PERCENT allows at most two decimal places, got %s", c.CommissionPercent)
	}
	if len(c.CredentialsEncryptionKey) < 32 {
		return fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.OrderIntentTTL <= 0 {
		return fmt.Errorf("ORDER_INTENT_TTL must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// WebhookEnabled reports whether webhook events may be processed at all
func (c *Config) WebhookEnabled() bool {
	return c.WebhookSecret != "" || c.WebhookAllowUnsigned
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
