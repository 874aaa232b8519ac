package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port   string
	Mode   string
	APIKey string

	// Database configuration
	DatabaseURL  string
	StateBackend string // sql or redis

	// Redis configuration
	RedisURL string

	// App Store receipt verification
	AppStoreSharedSecret string
	AppStoreSandbox      bool
	VerifyTimeout        time.Duration

	// Remote profile store
	Notifier              string // firebase, webhook or none
	FirebaseDatabaseURL   string
	FirebaseCredentials   string
	FirebaseUsersPath     string
	WebhookCallbackURL    string
	WebhookSecret         string
	NotifyMaxRetries      int
	NotifyInitialInterval time.Duration

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Product catalog
	WeeklyProductID     string
	MonthlyProductID    string
	WeeklyPrice         string
	MonthlyPrice        string
	ProductCacheMinutes int

	TransactionDedupHours int
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = Load()
	return nil
}

// Load builds a Config from the current environment.
func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		Mode:                  getEnv("GIN_MODE", "debug"),
		APIKey:                getEnv("API_KEY", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		StateBackend:          strings.ToLower(getEnv("STATE_BACKEND", "sql")),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AppStoreSharedSecret:  getEnv("APPSTORE_SHARED_SECRET", ""),
		AppStoreSandbox:       getEnvBool("APPSTORE_SANDBOX", false),
		VerifyTimeout:         getEnvDuration("VERIFY_TIMEOUT", 20*time.Second),
		Notifier:              strings.ToLower(getEnv("NOTIFIER", "none")),
		FirebaseDatabaseURL:   getEnv("FIREBASE_DATABASE_URL", ""),
		FirebaseCredentials:   getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		FirebaseUsersPath:     getEnv("FIREBASE_USERS_PATH", "users"),
		WebhookCallbackURL:    getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		NotifyMaxRetries:      getEnvInt("NOTIFY_MAX_RETRIES", 3),
		NotifyInitialInterval: getEnvDuration("NOTIFY_INITIAL_INTERVAL", time.Second),
		BrevoAPIKey:           getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:        getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:         getEnv("BREVO_FROM_NAME", "Subscriptions"),
		WeeklyProductID:       getEnv("WEEKLY_PRODUCT_ID", ""),
		MonthlyProductID:      getEnv("MONTHLY_PRODUCT_ID", ""),
		WeeklyPrice:           getEnv("WEEKLY_PRICE", ""),
		MonthlyPrice:          getEnv("MONTHLY_PRICE", ""),
		ProductCacheMinutes:   getEnvInt("PRODUCT_CACHE_MINUTES", 60),
		TransactionDedupHours: getEnvInt("TRANSACTION_DEDUP_HOURS", 24),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
