package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FanoutSync  = "sync"
	FanoutQueue = "queue"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT"`
	DBString string `env:"DB_STRING"`

	LogLevel string `env:"LOG_LEVEL"`
	LogDev   bool   `env:"LOG_DEV"`

	SettingsStore    string        `env:"SETTINGS_STORE"`
	SQLitePath       string        `env:"SQLITE_PATH"`
	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL"`

	CoverageDir string `env:"COVERAGE_DIR"`
	CatalogPath string `env:"CATALOG_PATH"`

	ZipCacheSize   int           `env:"ZIP_CACHE_SIZE"`
	ZipCacheTTL    time.Duration `env:"ZIP_CACHE_TTL"`
	GeocodeTimeout time.Duration `env:"GEOCODE_TIMEOUT"`

	FanoutMode       string        `env:"FANOUT_MODE"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS"`
	KafkaTopic       string        `env:"KAFKA_TOPIC"`
	KafkaGroupID     string        `env:"KAFKA_GROUP_ID"`
	QueueMaxAttempts int           `env:"QUEUE_MAX_ATTEMPTS"`
	QueueLease       time.Duration `env:"QUEUE_LEASE"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"`

	GoogleSheetID             string `env:"GOOGLE_SHEET_ID"`
	GoogleServiceAccountEmail string `env:"GOOGLE_SERVICE_ACCOUNT_EMAIL"`
	GooglePrivateKey          string `env:"GOOGLE_PRIVATE_KEY"`
	SheetWorksheet            string `env:"SHEET_WORKSHEET"`

	EmailDriver       string `env:"EMAIL_DRIVER"`
	PostmarkToken     string `env:"POSTMARK_API_TOKEN"`
	SendGridKey       string `env:"SENDGRID_API_KEY"`
	EmailSender       string `env:"EMAIL_SENDER"`
	NotificationEmail string `env:"NOTIFICATION_EMAIL"`

	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`

	FakeSalesToken     string        `env:"FAKE_SALES_AUTH_TOKEN"`
	CronSecret         string        `env:"CRON_SECRET"`
	FakeSalesInterval  time.Duration `env:"FAKE_SALES_INTERVAL"`
	FakeSalesAutostart bool          `env:"FAKE_SALES_AUTOSTART"`

	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string        `env:"JWT_SECRET"`
	JWTTTL            time.Duration `env:"JWT_TTL"`
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	cfg := &Config{
		HTTPPort: getenv("HTTP_PORT", "8080"),
		DBString: os.Getenv("DB_STRING"),

		LogLevel: getenv("LOG_LEVEL", "info"),
		LogDev:   getbool("LOG_DEV", false, &errs),

		SettingsStore:    strings.ToLower(getenv("SETTINGS_STORE", "postgres")),
		SQLitePath:       getenv("SQLITE_PATH", "settings.db"),
		SettingsCacheTTL: getduration("SETTINGS_CACHE_TTL", 5*time.Minute, &errs),

		CoverageDir: getenv("COVERAGE_DIR", "data/coverage"),
		CatalogPath: os.Getenv("CATALOG_PATH"),

		ZipCacheSize:   getint("ZIP_CACHE_SIZE", 10000, &errs),
		ZipCacheTTL:    getduration("ZIP_CACHE_TTL", 24*time.Hour, &errs),
		GeocodeTimeout: getduration("GEOCODE_TIMEOUT", 4*time.Second, &errs),

		FanoutMode:       strings.ToLower(getenv("FANOUT_MODE", FanoutSync)),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       getenv("KAFKA_TOPIC", "order-submissions"),
		KafkaGroupID:     getenv("KAFKA_GROUP_ID", "order-fanout"),
		QueueMaxAttempts: getint("QUEUE_MAX_ATTEMPTS", 8, &errs),
		QueueLease:       getduration("QUEUE_LEASE", 2*time.Minute, &errs),
		SweepInterval:    getduration("SWEEP_INTERVAL", 0, &errs),

		GoogleSheetID:             os.Getenv("GOOGLE_SHEET_ID"),
		GoogleServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
		// keys pasted into env files usually carry literal \n sequences
		GooglePrivateKey: strings.ReplaceAll(os.Getenv("GOOGLE_PRIVATE_KEY"), `\n`, "\n"),
		SheetWorksheet:   getenv("SHEET_WORKSHEET", "Form Submissions"),

		EmailDriver:       strings.ToLower(getenv("EMAIL_DRIVER", "postmark")),
		PostmarkToken:     os.Getenv("POSTMARK_API_TOKEN"),
		SendGridKey:       os.Getenv("SENDGRID_API_KEY"),
		EmailSender:       os.Getenv("EMAIL_SENDER"),
		NotificationEmail: os.Getenv("NOTIFICATION_EMAIL"),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: os.Getenv("VAPID_SUBSCRIBER"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.0-flash"),

		FakeSalesToken:     os.Getenv("FAKE_SALES_AUTH_TOKEN"),
		CronSecret:         os.Getenv("CRON_SECRET"),
		FakeSalesInterval:  getduration("FAKE_SALES_INTERVAL", 5*time.Minute, &errs),
		FakeSalesAutostart: getbool("FAKE_SALES_AUTOSTART", false, &errs),

		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTTTL:            getduration("JWT_TTL", 24*time.Hour, &errs),
	}

	if cfg.FanoutMode != FanoutSync && cfg.FanoutMode != FanoutQueue {
		errs = append(errs, fmt.Sprintf("FANOUT_MODE: unknown mode %q", cfg.FanoutMode))
	}
	if cfg.FanoutMode == FanoutQueue && cfg.KafkaBrokers == "" {
		errs = append(errs, "KAFKA_BROKERS is required when FANOUT_MODE=queue")
	}
	if cfg.SettingsStore != "postgres" && cfg.SettingsStore != "sqlite" {
		errs = append(errs, fmt.Sprintf("SETTINGS_STORE: unknown store %q", cfg.SettingsStore))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int, errs *[]string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func getbool(key string, def bool, errs *[]string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}

func getduration(key string, def time.Duration, errs *[]string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}
