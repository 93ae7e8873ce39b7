package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort    int    `env:"API_PORT,default=8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	AdminToken string `env:"ADMIN_TOKEN,required=true"`

	TrackingBaseURL string `env:"TRACKING_BASE_URL,default=http://localhost:8080/rastreio"`
	Timezone        string `env:"TIMEZONE,default=America/Sao_Paulo"`

	AutomationInterval time.Duration `env:"AUTOMATION_INTERVAL,default=1h"`
	BatchSize          int           `env:"AUTOMATION_BATCH_SIZE,default=50"`
	BatchBudget        time.Duration `env:"AUTOMATION_BATCH_BUDGET,default=50s"`
	RunLockTTL         time.Duration `env:"AUTOMATION_RUN_LOCK_TTL,default=5m"`
	SendTimeout        time.Duration `env:"AUTOMATION_SEND_TIMEOUT,default=30s"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY,default=1"`
	ConsumerPrefetch   int           `env:"CONSUMER_PREFETCH,default=1"`
	WorkerMetricsPort  int           `env:"WORKER_METRICS_PORT,default=9091"`

	// Shipments created from store orders get these sender fields.
	StoreName          string `env:"STORE_NAME,default=Loja"`
	StoreOriginAddress string `env:"STORE_ORIGIN_ADDRESS"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT,default=587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFrom        string `env:"SMTP_FROM"`
	SMTPImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS,default=false"`

	WhatsAppBaseURL     string `env:"WHATSAPP_BASE_URL"`
	WhatsAppInstanceID  string `env:"WHATSAPP_INSTANCE_ID"`
	WhatsAppToken       string `env:"WHATSAPP_TOKEN"`
	WhatsAppClientToken string `env:"WHATSAPP_CLIENT_TOKEN"`

	SMSBaseURL string `env:"SMS_BASE_URL"`
	SMSAPIKey  string `env:"SMS_API_KEY"`
	SMSSender  string `env:"SMS_SENDER"`

	RateLimitEmail    int `env:"RATE_LIMIT_EMAIL_PER_SEC,default=10"`
	RateLimitWhatsApp int `env:"RATE_LIMIT_WHATSAPP_PER_SEC,default=5"`
	RateLimitSMS      int `env:"RATE_LIMIT_SMS_PER_SEC,default=5"`
}

// Load reads the configuration from the environment. Files named in dotenv are
// loaded first when present; variables already set in the environment win.
func Load(dotenv ...string) (*Config, error) {
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves Timezone. The binaries embed tzdata so this works on minimal images.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppBaseURL != "" && c.WhatsAppInstanceID != "" && c.WhatsAppToken != ""
}

func (c *Config) SMSEnabled() bool {
	return c.SMSBaseURL != "" && c.SMSAPIKey != ""
}

func (c *Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("AUTOMATION_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("AUTOMATION_SEND_TIMEOUT must be positive, got %s", c.SendTimeout)
	}
	if c.BatchBudget <= 0 {
		return fmt.Errorf("AUTOMATION_BATCH_BUDGET must be positive, got %s", c.BatchBudget)
	}
	if c.AutomationInterval <= 0 {
		return fmt.Errorf("AUTOMATION_INTERVAL must be positive, got %s", c.AutomationInterval)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", c.WorkerConcurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
