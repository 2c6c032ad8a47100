package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// SecurityConfig controls encryption and the outbound-webhook URL guard.
type SecurityConfig struct {
	EncryptionKey  string   `json:"encryption_key" env:"SECURITY_ENCRYPTION_KEY"`
	AllowedDomains []string `json:"allowed_domains" env:"SECURITY_ALLOWED_DOMAINS"`
}

// IntegrationConfig names the outbound collaborator endpoint each action
// type dispatches to, per spec.md §4.F.
type IntegrationConfig struct {
	EmailEndpoint    string `json:"email_endpoint" env:"INTEGRATION_EMAIL_ENDPOINT"`
	SMSEndpoint      string `json:"sms_endpoint" env:"INTEGRATION_SMS_ENDPOINT"`
	CRMEndpoint      string `json:"crm_endpoint" env:"INTEGRATION_CRM_ENDPOINT"`
	TaskEndpoint     string `json:"task_endpoint" env:"INTEGRATION_TASK_ENDPOINT"`
	WorkflowEndpoint string `json:"workflow_endpoint" env:"INTEGRATION_WORKFLOW_ENDPOINT"`
	CustomEndpoint   string `json:"custom_endpoint" env:"INTEGRATION_CUSTOM_ENDPOINT"`
}

// PubSubConfig controls the event bus transport, per spec.md §4.D.
type PubSubConfig struct {
	Channel string `json:"channel" env:"PUBSUB_CHANNEL"`
	URL     string `json:"url" env:"PUBSUB_URL"`
}

// RateLimitConfig controls the ambient logger's drop policy (§4.J). The
// Webhook* fields are not read: the inbound webhook receiver uses a fixed
// 100 requests per 60s bucket per webhook (§4.H).
type RateLimitConfig struct {
	LogPerSecond       float64 `json:"log_rate_limit_per_second" env:"LOG_RATE_LIMIT_PER_SECOND"`
	LogBurst           int     `json:"log_rate_limit_burst" env:"LOG_RATE_LIMIT_BURST"`
	WebhookPerSecond   float64 `json:"webhook_rate_limit_per_second" env:"WEBHOOK_RATE_LIMIT_PER_SECOND"`
	WebhookBurst       int     `json:"webhook_rate_limit_burst" env:"WEBHOOK_RATE_LIMIT_BURST"`
}

// RuntimeConfig controls the poller and the outbound delivery worker pool,
// per spec.md §4.C and §4.I.
type RuntimeConfig struct {
	PollerInterval       int `json:"poller_interval_seconds" env:"RUNTIME_POLLER_INTERVAL_SECONDS"`
	PollerBatchSize      int `json:"poller_batch_size" env:"RUNTIME_POLLER_BATCH_SIZE"`
	DeliveryConcurrency  int `json:"delivery_concurrency" env:"RUNTIME_DELIVERY_CONCURRENCY"`
	DLQRetentionDays     int `json:"dlq_retention_days" env:"RUNTIME_DLQ_RETENTION_DAYS"`
	BulkRetryConcurrency int `json:"bulk_retry_concurrency" env:"RUNTIME_BULK_RETRY_CONCURRENCY"`
}

// ResilienceConfig selects the Breaker implementation backing the event
// bus's publish breaker ("gobreaker" or the default hand-rolled one).
type ResilienceConfig struct {
	Backend string `json:"backend" env:"RESILIENCE_BACKEND"`
}

// TracingConfig configures OTLP/Tracing exporters.
type TracingConfig struct {
	Endpoint           string            `json:"endpoint" env:"TRACING_OTLP_ENDPOINT"`
	Insecure           bool              `json:"insecure" env:"TRACING_OTLP_INSECURE"`
	ServiceName        string            `json:"service_name" env:"TRACING_SERVICE_NAME"`
	SampleRatio        float64           `json:"sample_ratio" env:"TRACING_SAMPLE_RATE"`
	ResourceAttributes map[string]string `json:"resource_attributes" mapstructure:"resource_attributes"`
	AttributesEnv      string            `json:"-" yaml:"-" env:"TRACING_OTLP_ATTRIBUTES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	PubSub    PubSubConfig    `json:"pubsub"`
	Integration IntegrationConfig `json:"integration"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Security  SecurityConfig  `json:"security"`
	Tracing   TracingConfig   `json:"tracing"`
	Resilience ResilienceConfig `json:"resilience"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "automation-core",
		},
		PubSub: PubSubConfig{
			Channel: "automation_events",
		},
		RateLimit: RateLimitConfig{
			LogPerSecond:     50,
			LogBurst:         100,
			WebhookPerSecond: 5,
			WebhookBurst:     10,
		},
		Runtime: RuntimeConfig{
			PollerInterval:       5,
			PollerBatchSize:      100,
			DeliveryConcurrency:  8,
			DLQRetentionDays:     30,
			BulkRetryConcurrency: 3,
		},
		Security: SecurityConfig{},
		Tracing: TracingConfig{
			SampleRatio: 0.1,
		},
		Resilience: ResilienceConfig{
			Backend: "hand_rolled",
		},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	cfg.normalize()

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

// applyDatabaseURLOverride aligns config loading with cmd/appserver: DATABASE_URL (Supabase DSN)
// overrides any file-based DSN to reduce setup friction.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func (t *TracingConfig) normalize() {
	if t == nil {
		return
	}
	t.MergeAttributes(t.AttributesEnv)
}

// MergeAttributes merges comma-separated key=value pairs into ResourceAttributes.
func (t *TracingConfig) MergeAttributes(raw string) {
	if t == nil {
		return
	}
	pairs := parseAttributePairs(raw)
	if len(pairs) == 0 {
		return
	}
	if t.ResourceAttributes == nil {
		t.ResourceAttributes = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		if k == "" {
			continue
		}
		t.ResourceAttributes[k] = v
	}
}

func parseAttributePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		val := ""
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}
		result[key] = val
	}
	return result
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	c.Tracing.normalize()
}
