package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Iiko       IikoConfig
	Tenants    TenantsConfig
	Catalog    CatalogConfig
	Storefront StorefrontConfig
	Gateway    GatewayConfig
	RabbitMQ   RabbitMQConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

type ServerConfig struct {
	Address        string        `env:"ADDRESS" envDefault:":8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
}

type IikoConfig struct {
	BaseURL           string        `env:"IIKO_BASE_URL" envDefault:"https://api-ru.iiko.services"`
	TokenTimeout      time.Duration `env:"IIKO_TOKEN_TIMEOUT" envDefault:"15s"`
	OrderTimeout      time.Duration `env:"IIKO_ORDER_TIMEOUT" envDefault:"20s"`
	TokenTTL          time.Duration `env:"IIKO_TOKEN_TTL" envDefault:"50m"` // upstream tokens live 60m
	ReconcileLookback time.Duration `env:"IIKO_RECONCILE_LOOKBACK" envDefault:"168h"`
	ReconcileAhead    time.Duration `env:"IIKO_RECONCILE_LOOKAHEAD" envDefault:"24h"`
	SearchRows        int           `env:"IIKO_SEARCH_ROWS" envDefault:"20"`
}

type TenantsConfig struct {
	JSON string `env:"TILDA_IIKO_CITIES_JSON"`
	File string `env:"TILDA_IIKO_CITIES_FILE"`
}

type CatalogConfig struct {
	Mode    string        `env:"TILDA_IIKO_MAPPING_MODE" envDefault:"env"`
	JSON    string        `env:"TILDA_IIKO_MAPPING_JSON" envDefault:"[]"`
	File    string        `env:"TILDA_IIKO_MAPPING_FILE"`
	CSVURL  string        `env:"TILDA_IIKO_MAPPING_CSV_URL"`
	TTL     time.Duration `env:"TILDA_IIKO_MAPPING_CACHE_TTL" envDefault:"5m"`
	Timeout time.Duration `env:"TILDA_IIKO_MAPPING_TIMEOUT" envDefault:"15s"`
}

type StorefrontConfig struct {
	WebhookSecret   string `env:"TILDA_WEBHOOK_SECRET"` // comma separated
	Login           string `env:"TILDA_LOGIN" envDefault:"ziina_shop"`
	Secret          string `env:"TILDA_SECRET"`
	NotificationURL string `env:"TILDA_NOTIFICATION_URL" envDefault:"https://forms.tildaapi.com/payment/custom/ps2755493"`
}

// Secrets splits the webhook secret list, dropping blanks.
func (s StorefrontConfig) Secrets() []string {
	var out []string
	for _, part := range strings.Split(s.WebhookSecret, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type GatewayConfig struct {
	APIToken            string        `env:"ZIINA_API_TOKEN"`
	APIKey              string        `env:"ZIINA_API_KEY"`
	APIURL              string        `env:"ZIINA_API_URL" envDefault:"https://api-v2.ziina.com/api"`
	Currency            string        `env:"ZIINA_CURRENCY" envDefault:"AED"`
	SuccessURL          string        `env:"ZIINA_SUCCESS_URL" envDefault:"https://sention.ae/ordersuccess"`
	Timeout             time.Duration `env:"ZIINA_TIMEOUT" envDefault:"15s"`
	PaymentCreatesOrder bool          `env:"PAYMENT_CREATES_ORDER" envDefault:"false"`
}

// Token returns whichever gateway credential is set.
func (g GatewayConfig) Token() string {
	if g.APIToken != "" {
		return g.APIToken
	}
	return g.APIKey
}

type RabbitMQConfig struct {
	URL           string `env:"RABBITMQ_URL"`
	SyncQueue     string `env:"RABBITMQ_SYNC_QUEUE" envDefault:"posbridge.order_sync"`
	PrefetchCount int    `env:"RABBITMQ_PREFETCH_COUNT" envDefault:"10"`
}

type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"` // comma separated
	Topic   string `env:"KAFKA_TOPIC" envDefault:"posbridge.order_sync"`
}

type ClickHouseConfig struct {
	Host     string `env:"CLICKHOUSE_HOST" envDefault:"clickhouse"`
	Port     int    `env:"CLICKHOUSE_PORT" envDefault:"9000"`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"posbridge"`
	Username string `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string `env:"CLICKHOUSE_PASSWORD"`
}

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"postgres"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	Database string `env:"POSTGRES_DATABASE" envDefault:"posbridge"`
	Username string `env:"POSTGRES_USERNAME" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	TimeZone string `env:"POSTGRES_TIMEZONE" envDefault:"Europe/Moscow"`
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Catalog.Mode = strings.ToLower(strings.TrimSpace(cfg.Catalog.Mode))
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Iiko.BaseURL == "" {
		errs = append(errs, errors.New("IIKO_BASE_URL is required"))
	}
	if c.Iiko.TokenTTL <= 0 {
		errs = append(errs, errors.New("IIKO_TOKEN_TTL must be positive"))
	}
	if c.Iiko.ReconcileLookback < 0 || c.Iiko.ReconcileAhead < 0 {
		errs = append(errs, errors.New("reconciliation window must not be negative"))
	}
	switch c.Catalog.Mode {
	case "env", "embedded", "postgres":
	case "file":
		if c.Catalog.File == "" {
			errs = append(errs, errors.New("TILDA_IIKO_MAPPING_FILE is required for file mode"))
		}
	case "csv_url":
		// an empty URL yields an empty catalog, like the storefront integration always did
	default:
		errs = append(errs, fmt.Errorf("unknown TILDA_IIKO_MAPPING_MODE %q", c.Catalog.Mode))
	}
	return errors.Join(errs...)
}
