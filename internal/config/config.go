// Package config loads the dashboard settings from a YAML file and
// DASHBOARD_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rental_dashboard/internal/auth"
)

const EnvPrefix = "DASHBOARD"

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	defaultAPIAddr  = ":8080"
	defaultCacheTTL = 5 * time.Minute
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Client    ClientConfig    `mapstructure:"client"`
	Accounts  []Account       `mapstructure:"accounts"`
}

type ServerConfig struct {
	Addr              string         `mapstructure:"addr"`
	MetricsAddr       string         `mapstructure:"metrics_addr"`
	MaxHeaderBytes    int            `mapstructure:"max_header_bytes"`
	MaxBodyBytes      int64          `mapstructure:"max_body_bytes"`
	ReadHeaderTimeout time.Duration  `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration  `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration  `mapstructure:"idle_timeout"`
	Shutdown          ShutdownConfig `mapstructure:"shutdown"`
}

type ShutdownConfig struct {
	Drain           time.Duration `mapstructure:"drain"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ForceClose      time.Duration `mapstructure:"force_close"`
}

type AdminConfig struct {
	Addr            string        `mapstructure:"addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	Token           string        `mapstructure:"token"`
	TLSCert         string        `mapstructure:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key"`
	ClientCA        string        `mapstructure:"client_ca"`
	RateLimitRPS    int           `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	MaxAuthFailures int           `mapstructure:"max_auth_failures"`
	BlockDuration   time.Duration `mapstructure:"block_duration"`
}

type CacheConfig struct {
	Backend        string                   `mapstructure:"backend"`
	TTL            time.Duration            `mapstructure:"ttl"`
	RouteTTL       map[string]time.Duration `mapstructure:"route_ttl"`
	MaxEntries     int                      `mapstructure:"max_entries"`
	MaxObjectBytes int                      `mapstructure:"max_object_bytes"`
	SweepInterval  time.Duration            `mapstructure:"sweep_interval"`
	Coalesce       bool                     `mapstructure:"coalesce"`
	CoalesceWait   time.Duration            `mapstructure:"coalesce_wait"`
	Redis          RedisConfig              `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig stops cache lookups against a failing Redis for OpenFor.
type BreakerConfig struct {
	FailureRatePercent int           `mapstructure:"failure_rate_percent"`
	MinimumRequests    int           `mapstructure:"minimum_requests"`
	Window             time.Duration `mapstructure:"window"`
	OpenFor            time.Duration `mapstructure:"open_for"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Seed   bool   `mapstructure:"seed"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type DocumentsConfig struct {
	ExpiryWindow time.Duration `mapstructure:"expiry_window"`
}

// ClientConfig drives the fetch and stats commands.
type ClientConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	AdminURL    string        `mapstructure:"admin_url"`
	TTL         time.Duration `mapstructure:"ttl"`
	FreshFor    time.Duration `mapstructure:"fresh_for"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// CAFile is trusted in addition to the system roots for https URLs.
	CAFile string      `mapstructure:"ca_file"`
	Retry  RetryConfig `mapstructure:"retry"`
}

// RetryConfig applies to reads only; writes are sent once.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type Account struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Role     string `mapstructure:"role"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultAPIAddr)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.max_header_bytes", 64*1024)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.read_header_timeout", 2*time.Second)
	v.SetDefault("server.idle_timeout", 30*time.Second)
	v.SetDefault("server.health_interval", 30*time.Second)
	v.SetDefault("server.shutdown.drain", 0)
	v.SetDefault("server.shutdown.graceful_timeout", 5*time.Second)
	v.SetDefault("server.shutdown.force_close", time.Second)

	v.SetDefault("admin.addr", "")
	v.SetDefault("admin.grpc_addr", "")
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.tls_cert", "")
	v.SetDefault("admin.tls_key", "")
	v.SetDefault("admin.client_ca", "")
	v.SetDefault("admin.rate_limit_rps", 5)
	v.SetDefault("admin.rate_limit_burst", 10)
	v.SetDefault("admin.max_auth_failures", 20)
	v.SetDefault("admin.block_duration", 10*time.Minute)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", defaultCacheTTL)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.max_object_bytes", 5<<20)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("cache.coalesce", false)
	v.SetDefault("cache.coalesce_wait", 2*time.Second)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "dashboard:respcache:")
	v.SetDefault("cache.redis.breaker.failure_rate_percent", 50)
	v.SetDefault("cache.redis.breaker.minimum_requests", 5)
	v.SetDefault("cache.redis.breaker.window", 10*time.Second)
	v.SetDefault("cache.redis.breaker.open_for", 5*time.Second)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.seed", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("documents.expiry_window", 30*24*time.Hour)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.admin_url", "http://localhost:9090")
	v.SetDefault("client.ttl", 10*time.Minute)
	v.SetDefault("client.fresh_for", 2*time.Minute)
	v.SetDefault("client.http_timeout", 10*time.Second)
	v.SetDefault("client.ca_file", "")
	v.SetDefault("client.retry.max_attempts", 3)
	v.SetDefault("client.retry.backoff", 200*time.Millisecond)
}

// NewViper returns a viper instance with defaults and environment binding.
// DASHBOARD_CACHE_TTL overrides cache.ttl. Only keys with a default are
// visible to the environment when decoding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (optional) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// AuthAccounts converts configured accounts for the authenticator.
func (c *Config) AuthAccounts() []auth.Account {
	if c == nil {
		return nil
	}
	out := make([]auth.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, auth.Account{
			Principal: auth.Principal{ID: a.ID, Name: a.Name, Role: auth.Role(a.Role)},
			Username:  a.Username,
			Password:  a.Password,
			Token:     a.Token,
		})
	}
	return out
}

var errNilConfig = errors.New("config is nil")
