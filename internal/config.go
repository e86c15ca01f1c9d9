package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Gate          GateConfig          `mapstructure:"gate"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SecurityConfig struct {
	// SessionSecret signs session tokens. Login fails with a 500 rather
	// than issuing unsigned tokens when it is absent or too short.
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	BCryptCost    int           `mapstructure:"bcrypt_cost"`

	// PermissionSnapshotMaxAge bounds how long the permission snapshot
	// embedded in a session token is trusted. Zero means never: every
	// protected request re-resolves permissions from the store. There is
	// no token revocation, so a large value means revoked permissions
	// stay effective until the token ages past this window.
	PermissionSnapshotMaxAge time.Duration `mapstructure:"permission_snapshot_max_age"`
}

type RateLimitConfig struct {
	// Store selects the attempt-store backend: "postgres" or "redis".
	Store         string        `mapstructure:"store"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

type GateConfig struct {
	AdminPrefix    string   `mapstructure:"admin_prefix"`
	LoginPath      string   `mapstructure:"login_path"`
	AuthEntryPaths []string `mapstructure:"auth_entry_paths"`
	Passthrough    []string `mapstructure:"passthrough"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultMaxAttempts   = 5
	DefaultBlockDuration = 15 * time.Minute
	DefaultSessionTTL    = 7 * 24 * time.Hour
	MinSecretLength      = 32
)

// ----------------- DEFAULTS -----------------

// ApplyDefaults fills policy constants that were left unset so a minimal
// config file still yields the documented behavior.
func (c *Config) ApplyDefaults() {
	if c.RateLimit.MaxAttempts <= 0 {
		c.RateLimit.MaxAttempts = DefaultMaxAttempts
	}
	if c.RateLimit.BlockDuration <= 0 {
		c.RateLimit.BlockDuration = DefaultBlockDuration
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "postgres"
	}
	if c.Security.SessionTTL <= 0 {
		c.Security.SessionTTL = DefaultSessionTTL
	}
	if c.Security.BCryptCost <= 0 {
		c.Security.BCryptCost = 12
	}
	if c.Gate.AdminPrefix == "" {
		c.Gate.AdminPrefix = "/dashboard"
	}
	if c.Gate.LoginPath == "" {
		c.Gate.LoginPath = "/login"
	}
	if len(c.Gate.AuthEntryPaths) == 0 {
		c.Gate.AuthEntryPaths = []string{"/login", "/register"}
	}
	if len(c.Gate.Passthrough) == 0 {
		c.Gate.Passthrough = []string{
			"/static/", "/assets/", "/favicon.ico",
			"/sitemap.xml", "/robots.txt", "/service-worker.js",
			"/api/v1/health", "/api/v1/ping",
		}
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// LoadConfigFromEnv builds the config purely from environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:        getEnv("BASE_URL", ""),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Source:       getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			SessionSecret:            getEnv("SESSION_SECRET", ""),
			SessionTTL:               getEnvAsDuration("SESSION_TTL", DefaultSessionTTL),
			BCryptCost:               getEnvAsInt("BCRYPT_COST", 12),
			PermissionSnapshotMaxAge: getEnvAsDuration("PERMISSION_SNAPSHOT_MAX_AGE", 0),
		},
		RateLimit: RateLimitConfig{
			Store:         getEnv("RATE_LIMIT_STORE", "postgres"),
			MaxAttempts:   getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", DefaultMaxAttempts),
			BlockDuration: getEnvAsDuration("RATE_LIMIT_BLOCK_DURATION", DefaultBlockDuration),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rate limit config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.SessionSecret) < MinSecretLength {
		return fmt.Errorf("session secret must be at least %d characters", MinSecretLength)
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *RateLimitConfig) Validate() error {
	if c.Store != "postgres" && c.Store != "redis" {
		return fmt.Errorf("unknown attempt store %q", c.Store)
	}
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if c.BlockDuration < time.Minute {
		return errors.New("block_duration must be at least 1m")
	}
	return nil
}
