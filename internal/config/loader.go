package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "echobox.yaml"

// DefaultEnvFile is loaded into the process environment before the env overlay.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}
	path := os.Getenv("ECHOBOX_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv adds variables from path to the environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ECHOBOX_PORT")
	setString(&cfg.Server.CORSOrigin, "ECHOBOX_CORS_ORIGIN")
	setDuration(&cfg.Server.ReadTimeout, "ECHOBOX_READ_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "ECHOBOX_SHUTDOWN_TIMEOUT")
	setString(&cfg.Server.AdminToken, "ECHOBOX_ADMIN_TOKEN")

	setString(&cfg.Store.Driver, "ECHOBOX_STORE_DRIVER")
	setString(&cfg.Store.SQLitePath, "ECHOBOX_SQLITE_PATH")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ECHOBOX_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ECHOBOX_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ECHOBOX_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ECHOBOX_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ECHOBOX_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "ECHOBOX_NATS_SUBJECT")

	setString(&cfg.Logging.Level, "ECHOBOX_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ECHOBOX_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ECHOBOX_LOG_ASYNC")

	// Delivery
	setDuration(&cfg.Delivery.SenderTimeout, "ECHOBOX_SENDER_TIMEOUT")
	setInt(&cfg.Delivery.MaxParallel, "ECHOBOX_MAX_PARALLEL")
	setInt(&cfg.Delivery.Breaker.MaxFailures, "ECHOBOX_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Delivery.Breaker.Timeout, "ECHOBOX_BREAKER_TIMEOUT")

	// Stream
	setDuration(&cfg.Stream.HeartbeatInterval, "ECHOBOX_HEARTBEAT_INTERVAL")
	setInt(&cfg.Stream.BufferSize, "ECHOBOX_STREAM_BUFFER")
	setDuration(&cfg.Stream.RetryHint, "ECHOBOX_STREAM_RETRY_HINT")

	// Cache
	setInt64(&cfg.Cache.MaxSizeMB, "ECHOBOX_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.ChannelTTL, "ECHOBOX_CACHE_CHANNEL_TTL")
	setDuration(&cfg.Cache.IdempotencyTTL, "ECHOBOX_IDEMPOTENCY_TTL")

	// SMTP
	setString(&cfg.SMTP.Host, "ECHOBOX_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "ECHOBOX_SMTP_PORT")
	setString(&cfg.SMTP.From, "ECHOBOX_SMTP_FROM")
	setString(&cfg.SMTP.Password, "ECHOBOX_SMTP_PASSWORD")

	// OpenTelemetry
	setString(&cfg.OTEL.Endpoint, "ECHOBOX_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "ECHOBOX_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "ECHOBOX_OTEL_INSECURE")

	setFloat64(&cfg.Rate.RequestsPerSecond, "ECHOBOX_RATE_RPS")
	setInt(&cfg.Rate.Burst, "ECHOBOX_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "ECHOBOX_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "ECHOBOX_RATE_MAX_IDLE_TIME")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "sqlite":
		if cfg.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of postgres, sqlite", cfg.Store.Driver)
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject == "" {
		return errors.New("nats.subject is required when nats.url is set")
	}
	if cfg.Delivery.SenderTimeout <= 0 {
		return errors.New("delivery.sender_timeout must be > 0")
	}
	if cfg.Delivery.MaxParallel < 0 {
		return errors.New("delivery.max_parallel must be >= 0")
	}
	if cfg.Delivery.Breaker.MaxFailures < 0 {
		return errors.New("delivery.breaker.max_failures must be >= 0")
	}
	if cfg.Stream.HeartbeatInterval <= 0 {
		return errors.New("stream.heartbeat_interval must be > 0")
	}
	if cfg.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
