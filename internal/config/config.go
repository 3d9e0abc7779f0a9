// Package config loads service configuration from defaults, an optional
// YAML file, a .env file and FLEETOPS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Planner  PlannerConfig  `mapstructure:"planner"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Corridor CorridorConfig `mapstructure:"corridor"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Client   ClientConfig   `mapstructure:"client"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	AllowOrigins      []string      `mapstructure:"allow_origins"`
	RateRPS           float64       `mapstructure:"rate_rps"`
	RateBurst         int           `mapstructure:"rate_burst"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// StoreConfig selects the persistence driver: memory, sqlite or postgres.
type StoreConfig struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Path    string `mapstructure:"path"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig enables the Redis event broker when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	Mode          string `mapstructure:"mode"` // dev, hmac, jwks
	HMACSecret    string `mapstructure:"hmac_secret"`
	JWKSURL       string `mapstructure:"jwks_url"`
	OperatorClaim string `mapstructure:"operator_claim"`
	RoleClaim     string `mapstructure:"role_claim"`
	DefaultRole   string `mapstructure:"default_role"`
}

type PlannerConfig struct {
	AuditLimit        int     `mapstructure:"audit_limit"`
	ConflictWindow    int     `mapstructure:"conflict_window"`
	BatchConcurrency  int     `mapstructure:"batch_concurrency"`
	ServiceRequired   int     `mapstructure:"service_required"`
	StandbyRequired   int     `mapstructure:"standby_required"`
	BrandingThreshold float64 `mapstructure:"branding_threshold"`
	CertWarnDays      int     `mapstructure:"cert_warn_days"`
}

type WebhooksConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CorridorConfig holds the route file and the static map proxy settings.
// MapsKey never leaves the server.
type CorridorConfig struct {
	File        string `mapstructure:"file"`
	MapsKey     string `mapstructure:"maps_key"`
	MapsBaseURL string `mapstructure:"maps_base_url"`
	MapSize     string `mapstructure:"map_size"`
}

// SeedConfig loads a dataset at startup: Dir is imported if set, otherwise
// Generate runs the simulator with the default profile.
type SeedConfig struct {
	Dir      string `mapstructure:"dir"`
	Generate bool   `mapstructure:"generate"`
	Profile  string `mapstructure:"profile"`
}

// ClientConfig is used by fleetctl to reach the API.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.rate_rps", 0.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "fleetops.db")
	v.SetDefault("store.migrate", true)

	v.SetDefault("redis.url", "")

	v.SetDefault("auth.mode", "dev")
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.operator_claim", "sub")
	v.SetDefault("auth.role_claim", "role")
	v.SetDefault("auth.default_role", "admin")

	v.SetDefault("planner.audit_limit", 1000)
	v.SetDefault("planner.conflict_window", 10)
	v.SetDefault("planner.batch_concurrency", 4)
	v.SetDefault("planner.service_required", 15)
	v.SetDefault("planner.standby_required", 5)
	v.SetDefault("planner.branding_threshold", 60.0)
	v.SetDefault("planner.cert_warn_days", 2)

	v.SetDefault("webhooks.enabled", true)
	v.SetDefault("webhooks.max_attempts", 10)
	v.SetDefault("webhooks.interval", time.Second)
	v.SetDefault("webhooks.timeout", 5*time.Second)

	v.SetDefault("corridor.file", "")
	v.SetDefault("corridor.maps_key", "")
	v.SetDefault("corridor.maps_base_url", "https://maps.googleapis.com/maps/api/staticmap")
	v.SetDefault("corridor.map_size", "700x450")

	v.SetDefault("seed.dir", "")
	v.SetDefault("seed.generate", false)
	v.SetDefault("seed.profile", "")

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", 15*time.Second)
}

// Default returns the built-in defaults without reading files or env.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration. Env var overrides use prefix FLEETOPS_ with '.'
// replaced by '_' (FLEETOPS_STORE_DRIVER=sqlite). FLEETOPS_CONFIG names a
// YAML file; otherwise ./fleetops.yaml is read if present.
func Load() (Config, error) {
	// .env is optional for local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if p := os.Getenv("FLEETOPS_CONFIG"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("fleetops")
	}
	v.SetEnvPrefix("FLEETOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if os.Getenv("FLEETOPS_CONFIG") != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Auth.Mode {
	case "dev", "jwks":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("auth.hmac_secret is required in hmac mode")
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	if c.Server.RateRPS < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("rate limits must be non-negative")
	}
	return nil
}

// Logger builds the process logger.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
