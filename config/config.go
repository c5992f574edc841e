package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Wallet storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

// WalletConfig selects where the wallet lives. With the sqlite backend the
// wallet is the file at Path, locked through Path + ".lock". With postgres
// it is the database in DatabaseConfig, locked through an advisory lock
// keyed by Name.
type WalletConfig struct {
	Backend     string        `mapstructure:"backend"` // sqlite, postgres
	Path        string        `mapstructure:"path"`
	Name        string        `mapstructure:"name"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	MaxConns    int           `mapstructure:"max_conns"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string. Credentials are escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// RedisConfig configures the optional Redis used for replace idempotency
// and login rate limiting. When Enabled is false neither feature runs.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type AuthConfig struct {
	PasswordHash    string        `mapstructure:"password_hash"` // argon2id, see `walletd hash-password`
	LoginRateLimit  int64         `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WCW_ (webcash wallet).
// Nested keys use underscore: WCW_WALLET_PATH, WCW_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("wallet.backend", BackendSQLite)
	v.SetDefault("wallet.path", "wallet.db")
	v.SetDefault("wallet.name", "default")
	v.SetDefault("wallet.busy_timeout", "5s")
	v.SetDefault("wallet.max_conns", 1)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.idempotency_ttl", "24h")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "webcash_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.login_rate_limit", 5)
	v.SetDefault("auth.login_rate_window", "1m")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "1h")
	v.SetDefault("jwt.issuer", "walletd")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WCW_WALLET_PATH -> wallet.path
	v.SetEnvPrefix("WCW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Wallet.Backend {
	case BackendSQLite:
		if c.Wallet.Path == "" {
			errs = append(errs, errors.New("wallet.path is required for the sqlite backend"))
		}
		if strings.ContainsAny(c.Wallet.Path, "?#") {
			errs = append(errs, fmt.Errorf("wallet.path must not contain '?' or '#', got %q", c.Wallet.Path))
		}
	case BackendPostgres:
		if c.Wallet.Name == "" {
			errs = append(errs, errors.New("wallet.name is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("wallet.backend must be %q or %q, got %q", BackendSQLite, BackendPostgres, c.Wallet.Backend))
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode))
	}

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 characters"))
	}
	if c.JWT.Expiry <= 0 {
		errs = append(errs, errors.New("jwt.expiry must be positive"))
	}
	if c.Auth.PasswordHash == "" {
		errs = append(errs, errors.New("auth.password_hash is required"))
	}
	if c.Redis.Enabled && c.Auth.LoginRateLimit <= 0 {
		errs = append(errs, errors.New("auth.login_rate_limit must be positive"))
	}

	return errors.Join(errs...)
}
