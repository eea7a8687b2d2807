// Package config loads application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "NOTIFY_"
	configPathEnv = "CONFIG_PATH"
)

// Backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Store     StoreConfig     `koanf:"store"`
	Bus       BusConfig       `koanf:"bus"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Retry     RetryConfig     `koanf:"retry"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Email     EmailConfig     `koanf:"email"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL             string        `koanf:"url"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// StoreConfig selects the notification store.
type StoreConfig struct {
	Backend string `koanf:"backend"`
}

// BusConfig selects the pub/sub bus.
type BusConfig struct {
	Backend    string `koanf:"backend"`
	BufferSize int    `koanf:"buffer_size"`
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	ChannelTimeout     time.Duration `koanf:"channel_timeout"`
	AttemptTimeout     time.Duration `koanf:"attempt_timeout"`
	EmptyChannelStatus string        `koanf:"empty_channel_status"`
}

// RetryConfig holds the channel retry policy.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// RateLimitConfig holds per-recipient admission settings.
type RateLimitConfig struct {
	Backend       string        `koanf:"backend"`
	Points        int           `koanf:"points"`
	Window        time.Duration `koanf:"window"`
	BlockDuration time.Duration `koanf:"block_duration"`
	KeyPrefix     string        `koanf:"key_prefix"`
}

// SMTPConfig is one SMTP endpoint.
type SMTPConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	SSL      bool          `koanf:"ssl"`
	Timeout  time.Duration `koanf:"timeout"`
}

// EmailConfig holds the email channel settings.
type EmailConfig struct {
	Enabled            bool              `koanf:"enabled"`
	From               string            `koanf:"from"`
	Primary            SMTPConfig        `koanf:"primary"`
	Secondary          SMTPConfig        `koanf:"secondary"`
	MaxConnections     int               `koanf:"max_connections"`
	MaxMessagesPerConn int               `koanf:"max_messages_per_conn"`
	RatePerSecond      float64           `koanf:"rate_per_second"`
	Burst              int               `koanf:"burst"`
	SharedRateLimit    int               `koanf:"shared_rate_limit"`
	TemplatesDir       string            `koanf:"templates_dir"`
	Templates          map[string]string `koanf:"templates"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      3 * time.Minute,
			IdleTimeout:       60 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnectAttempts: 5,
			ConnectTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			URL:             "redis://localhost:6379/0",
			ConnectAttempts: 5,
			ConnectTimeout:  60 * time.Second,
		},
		Store: StoreConfig{Backend: BackendPostgres},
		Bus:   BusConfig{Backend: BackendRedis, BufferSize: 256},
		Dispatch: DispatchConfig{
			ChannelTimeout:     2 * time.Minute,
			AttemptTimeout:     30 * time.Second,
			EmptyChannelStatus: "pending",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend:       BackendRedis,
			Points:        100,
			Window:        time.Minute,
			BlockDuration: time.Minute,
			KeyPrefix:     "ratelimit:notifications",
		},
		Email: EmailConfig{
			Primary:            SMTPConfig{Port: 587, Timeout: 10 * time.Second},
			Secondary:          SMTPConfig{Port: 587, Timeout: 10 * time.Second},
			MaxConnections:     5,
			MaxMessagesPerConn: 100,
			RatePerSecond:      10,
			Burst:              10,
		},
	}
}

// Load reads configuration from defaults, the YAML file named by CONFIG_PATH
// (if set), then NOTIFY_* environment variables. Nested keys use a double
// underscore in env names: NOTIFY_EMAIL__PRIMARY__HOST.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres store"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be postgres or memory, got %q", c.Store.Backend))
	}

	if !slices.Contains([]string{BackendRedis, BackendMemory}, c.Bus.Backend) {
		errs = append(errs, fmt.Errorf("bus.backend must be redis or memory, got %q", c.Bus.Backend))
	}
	if !slices.Contains([]string{BackendRedis, BackendMemory}, c.RateLimit.Backend) {
		errs = append(errs, fmt.Errorf("rate_limit.backend must be redis or memory, got %q", c.RateLimit.Backend))
	}
	if c.UsesRedis() && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for redis backends"))
	}

	if c.RateLimit.Points <= 0 {
		errs = append(errs, errors.New("rate_limit.points must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}

	if !slices.Contains([]string{"pending", "delivered"}, c.Dispatch.EmptyChannelStatus) {
		errs = append(errs, fmt.Errorf("dispatch.empty_channel_status must be pending or delivered, got %q", c.Dispatch.EmptyChannelStatus))
	}

	if c.Email.Enabled {
		if c.Email.From == "" {
			errs = append(errs, errors.New("email.from is required when email is enabled"))
		}
		if c.Email.Primary.Host == "" {
			errs = append(errs, errors.New("email.primary.host is required when email is enabled"))
		}
	}

	return errors.Join(errs...)
}

// UsesRedis reports whether any component is backed by Redis.
func (c *Config) UsesRedis() bool {
	return c.Bus.Backend == BackendRedis ||
		c.RateLimit.Backend == BackendRedis ||
		(c.Email.Enabled && c.Email.SharedRateLimit > 0)
}
