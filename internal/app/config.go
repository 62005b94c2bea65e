package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/casedesk-backend/internal/data/db"
	"github.com/yungbote/casedesk-backend/internal/jobs/outbox"
	"github.com/yungbote/casedesk-backend/internal/observability"
	"github.com/yungbote/casedesk-backend/internal/platform/envutil"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
	bridge "github.com/yungbote/casedesk-backend/internal/realtime/bus"
	"github.com/yungbote/casedesk-backend/internal/services"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	Driver     string            `yaml:"driver"`
	Postgres   db.PostgresConfig `yaml:"postgres"`
	SQLitePath string            `yaml:"sqlite_path"`
}

type SLAConfig struct {
	WarningWindow time.Duration `yaml:"warning_window"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepLimit    int           `yaml:"sweep_limit"`
}

// BridgeConfig controls forwarding of committed events to Redis. An empty
// address disables the bridge.
type BridgeConfig struct {
	RedisAddr string   `yaml:"redis_addr"`
	Channel   string   `yaml:"channel"`
	Events    []string `yaml:"events"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	LogMode string                   `yaml:"log_mode"`
	DB      DBConfig                 `yaml:"db"`
	Outbox  outbox.Config            `yaml:"outbox"`
	SLA     SLAConfig                `yaml:"sla"`
	Bridge  BridgeConfig             `yaml:"bridge"`
	HTTP    HTTPConfig               `yaml:"http"`
	Otel    observability.OtelConfig `yaml:"otel"`
	Retry   services.RetryPolicy     `yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		LogMode: "development",
		DB: DBConfig{
			Driver: DriverPostgres,
			Postgres: db.PostgresConfig{
				Host:    "localhost",
				Port:    "5432",
				User:    "postgres",
				Name:    "casedesk",
				SSLMode: "disable",
			},
			SQLitePath: "casedesk.db",
		},
		Outbox: outbox.DefaultConfig(),
		SLA: SLAConfig{
			WarningWindow: 15 * time.Minute,
			SweepInterval: time.Minute,
			SweepLimit:    200,
		},
		Bridge: BridgeConfig{
			Channel: bridge.DefaultChannel,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Otel: observability.OtelConfig{
			ServiceName: "casedesk",
			SampleRatio: 1,
		},
		Retry: services.DefaultRetryPolicy(),
	}
}

// LoadConfig layers the optional YAML file named by CASEDESK_CONFIG over the
// defaults, then applies environment variables on top.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String("CASEDESK_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)

	cfg.DB.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.DB.Driver))
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)
	pg := &cfg.DB.Postgres
	pg.Host = envutil.String("POSTGRES_HOST", pg.Host)
	pg.Port = envutil.String("POSTGRES_PORT", pg.Port)
	pg.User = envutil.String("POSTGRES_USER", pg.User)
	pg.Password = envutil.String("POSTGRES_PASSWORD", pg.Password)
	pg.Name = envutil.String("POSTGRES_NAME", pg.Name)
	pg.SSLMode = envutil.String("POSTGRES_SSLMODE", pg.SSLMode)

	ob := &cfg.Outbox
	ob.PollInterval = envutil.Millis("OUTBOX_POLL_INTERVAL_MS", ob.PollInterval)
	ob.BatchSize = envutil.Int("OUTBOX_BATCH_SIZE", ob.BatchSize)
	ob.Concurrency = envutil.Int("OUTBOX_CONCURRENCY", ob.Concurrency)
	ob.MaxAttempts = envutil.Int("OUTBOX_MAX_ATTEMPTS", ob.MaxAttempts)
	ob.BackoffBase = envutil.Millis("OUTBOX_BACKOFF_BASE_MS", ob.BackoffBase)
	ob.BackoffMax = envutil.Millis("OUTBOX_BACKOFF_MAX_MS", ob.BackoffMax)
	ob.MinAge = envutil.Millis("OUTBOX_MIN_AGE_MS", ob.MinAge)

	cfg.SLA.WarningWindow = envutil.Minutes("SLA_WARNING_WINDOW_MIN", cfg.SLA.WarningWindow)
	cfg.SLA.SweepInterval = envutil.Millis("SLA_SWEEP_INTERVAL_MS", cfg.SLA.SweepInterval)
	cfg.SLA.SweepLimit = envutil.Int("SLA_SWEEP_LIMIT", cfg.SLA.SweepLimit)

	cfg.Bridge.RedisAddr = envutil.String("REDIS_ADDR", cfg.Bridge.RedisAddr)
	cfg.Bridge.Channel = envutil.String("REDIS_CHANNEL", cfg.Bridge.Channel)
	cfg.Bridge.Events = envutil.List("BRIDGE_EVENTS", cfg.Bridge.Events)

	cfg.HTTP.Addr = envutil.String("OPS_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	ot := &cfg.Otel
	ot.Enabled = envutil.Bool("OTEL_ENABLED", ot.Enabled)
	ot.ServiceName = envutil.String("OTEL_SERVICE_NAME", ot.ServiceName)
	ot.Environment = envutil.String("OTEL_ENVIRONMENT", ot.Environment)
	ot.Version = envutil.String("OTEL_SERVICE_VERSION", ot.Version)
	ot.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ot.Endpoint)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		ot.Headers = observability.ParseHeaders(raw)
	}
	ot.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", ot.Insecure)
	if v := envutil.Int("OTEL_SAMPLER_RATIO_PCT", -1); v >= 0 {
		ot.SampleRatio = float64(v) / 100
	}

	cfg.Retry.Attempts = envutil.Int("SAVE_RETRY_ATTEMPTS", cfg.Retry.Attempts)
	cfg.Retry.Backoff = envutil.Millis("SAVE_RETRY_BACKOFF_MS", cfg.Retry.Backoff)
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Postgres.Host == "" || c.DB.Postgres.Name == "" {
			return fmt.Errorf("postgres host and name are required")
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	if c.Bridge.RedisAddr != "" {
		if _, unknown := bridge.ParseTypes(c.Bridge.Events); len(unknown) > 0 {
			return fmt.Errorf("unknown bridge event types: %s", strings.Join(unknown, ", "))
		}
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("ops listen address is required")
	}
	return nil
}
