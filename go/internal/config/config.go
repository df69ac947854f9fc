package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config is the server configuration. Values come from defaults, then the
// optional YAML file, then environment variables.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`
	Timer    TimerConfig  `yaml:"timer"`
	Store    StoreConfig  `yaml:"store"`
	NATS     NATSConfig   `yaml:"nats"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Requests allowed per client IP per window on /start and /reset.
	AdminRateLimit  int           `yaml:"admin_rate_limit"`
	AdminRateWindow time.Duration `yaml:"admin_rate_window"`
}

type TimerConfig struct {
	Duration         time.Duration `yaml:"duration"`
	PreCountdownFrom int           `yaml:"pre_countdown_from"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres DatabaseConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	Table    string `yaml:"table"`
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// NATSConfig enables the JetStream signal mirror when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            5000,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
			AdminRateLimit:  10,
			AdminRateWindow: time.Minute,
		},
		Timer: TimerConfig{
			Duration:         24 * time.Hour,
			PreCountdownFrom: 5,
			TickInterval:     time.Second,
			StoreTimeout:     5 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{
				Path:        "countdown.db",
				BusyTimeout: 5 * time.Second,
			},
			Postgres: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				Database: "countdown",
				SSLMode:  "disable",
				Table:    "countdown_timer",
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "countdown",
				Collection: "timers",
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "countdown:timer",
			},
		},
		NATS: NATSConfig{
			Stream:        "COUNTDOWN_SIGNALS",
			SubjectPrefix: "countdown.signals",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// COUNTDOWN_CONFIG is consulted; a missing file path means no file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("COUNTDOWN_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("LOG_LEVEL", &c.LogLevel)

	num("PORT", &c.Server.Port)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	num("ADMIN_RATE_LIMIT", &c.Server.AdminRateLimit)
	dur("ADMIN_RATE_WINDOW", &c.Server.AdminRateWindow)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	dur("COUNTDOWN_DURATION", &c.Timer.Duration)
	num("PRECOUNTDOWN_FROM", &c.Timer.PreCountdownFrom)
	dur("TICK_INTERVAL", &c.Timer.TickInterval)
	dur("STORE_TIMEOUT", &c.Timer.StoreTimeout)

	str("STORE_DRIVER", &c.Store.Driver)
	str("SQLITE_PATH", &c.Store.SQLite.Path)
	dur("SQLITE_BUSY_TIMEOUT", &c.Store.SQLite.BusyTimeout)

	str("DB_HOST", &c.Store.Postgres.Host)
	num("DB_PORT", &c.Store.Postgres.Port)
	str("DB_USER", &c.Store.Postgres.User)
	str("DB_PASSWORD", &c.Store.Postgres.Password)
	str("DB_NAME", &c.Store.Postgres.Database)
	str("DB_SSLMODE", &c.Store.Postgres.SSLMode)
	str("DB_TABLE", &c.Store.Postgres.Table)

	str("MONGODB_URI", &c.Store.Mongo.URI)
	str("MONGODB_DATABASE", &c.Store.Mongo.Database)
	str("MONGODB_COLLECTION", &c.Store.Mongo.Collection)

	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	num("REDIS_DB", &c.Store.Redis.DB)
	str("REDIS_KEY", &c.Store.Redis.Key)

	str("NATS_URL", &c.NATS.URL)
	str("NATS_STREAM", &c.NATS.Stream)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverMongo, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Timer.Duration <= 0 {
		errs = append(errs, errors.New("timer duration must be positive"))
	}
	if c.Timer.PreCountdownFrom <= 0 {
		errs = append(errs, errors.New("pre-countdown length must be positive"))
	}
	if c.Timer.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if c.Server.AdminRateLimit < 0 {
		errs = append(errs, errors.New("admin rate limit cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
