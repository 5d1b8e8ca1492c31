package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	LookupCacheTTL int    `mapstructure:"LOOKUP_CACHE_TTL"`

	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string   `mapstructure:"KAFKA_TOPIC"`
	KafkaClientID string   `mapstructure:"KAFKA_CLIENT_ID"`

	AsynqRedisAddr    string `mapstructure:"ASYNQ_REDIS_ADDR"`
	AsynqConcurrency  int    `mapstructure:"ASYNQ_CONCURRENCY"`
	AsynqQueue        string `mapstructure:"ASYNQ_QUEUE"`
	OutboxBatchSize   int    `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts int    `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxScanSec     int    `mapstructure:"OUTBOX_SCAN_SEC"`

	NotifyCron        string   `mapstructure:"NOTIFY_CRON"`
	StaleEventPeriods string   `mapstructure:"STALE_EVENT_PERIODS"`
	EpiUserEmails     []string `mapstructure:"EPI_USER_ROLE_EMAILS"`
	AdminEmail        string   `mapstructure:"ADMIN_EMAIL"`
	SMTPHost          string   `mapstructure:"SMTP_HOST"`
	SMTPPort          int      `mapstructure:"SMTP_PORT"`
	SMTPFrom          string   `mapstructure:"SMTP_FROM"`

	OTELEndpoint    string  `mapstructure:"OTEL_ENDPOINT"`
	OTELSampleRatio float64 `mapstructure:"OTEL_SAMPLE_RATIO"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "LOOKUP_CACHE_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_CLIENT_ID",
	"ASYNQ_REDIS_ADDR", "ASYNQ_CONCURRENCY", "ASYNQ_QUEUE",
	"OUTBOX_BATCH_SIZE", "OUTBOX_MAX_ATTEMPTS", "OUTBOX_SCAN_SEC",
	"NOTIFY_CRON", "STALE_EVENT_PERIODS", "EPI_USER_ROLE_EMAILS", "ADMIN_EMAIL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_FROM",
	"OTEL_ENDPOINT", "OTEL_SAMPLE_RATIO",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOOKUP_CACHE_TTL", 300)
	v.SetDefault("KAFKA_TOPIC", "whispers.events")
	v.SetDefault("KAFKA_CLIENT_ID", "whispers-server")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("ASYNQ_QUEUE", "default")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)
	v.SetDefault("OUTBOX_SCAN_SEC", 5)
	v.SetDefault("NOTIFY_CRON", "0 1 * * *")
	v.SetDefault("STALE_EVENT_PERIODS", "30,60,90")
	v.SetDefault("ADMIN_EMAIL", "whispers@usgs.gov")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_FROM", "whispers@usgs.gov")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.EpiUserEmails = splitList(v.GetString("EPI_USER_ROLE_EMAILS"))
	if cfg.AsynqRedisAddr == "" {
		cfg.AsynqRedisAddr = cfg.RedisAddr
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in development mode: every request without X-Anonymous gets SuperAdmin access")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LookupTTL is the Redis expiry for cached reference data.
func (c *Config) LookupTTL() time.Duration {
	return time.Duration(c.LookupCacheTTL) * time.Second
}

// StalePeriods parses STALE_EVENT_PERIODS. Any non-numeric entry disables
// the stale-event job by returning no periods.
func (c *Config) StalePeriods() []int {
	var periods []int
	for _, part := range splitList(c.StaleEventPeriods) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil
		}
		periods = append(periods, n)
	}
	return periods
}

// Validate checks that the configuration is safe to run. Outside development
// a token verification method must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
		}
		if c.AuthJWKSURL != "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required when AUTH_JWKS_URL is set")
		}
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %v", c.OTELSampleRatio)
	}
	if c.OutboxMaxAttempts < 1 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
