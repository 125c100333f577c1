package config

import (
	"fmt"
	"strings"

	"rental_dashboard/internal/auth"
)

// Validate rejects settings the server cannot run with and returns warnings
// for ones it can run with but probably should not.
func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	warnings := []string{}
	if err := validateServer(cfg); err != nil {
		return warnings, err
	}
	if err := validateCache(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateStore(cfg); err != nil {
		return warnings, err
	}
	if err := validateAdmin(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateAccounts(cfg, &warnings); err != nil {
		return warnings, err
	}
	if cfg.Client.Retry.MaxAttempts < 0 || cfg.Client.Retry.Backoff < 0 {
		return warnings, fmt.Errorf("client.retry settings must be non-negative")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return warnings, fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return warnings, nil
}

func validateServer(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("server.max_header_bytes must be non-negative")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must be non-negative")
	}
	shutdown := cfg.Server.Shutdown
	if shutdown.Drain < 0 || shutdown.GracefulTimeout < 0 || shutdown.ForceClose < 0 {
		return fmt.Errorf("server.shutdown durations must be non-negative")
	}
	return nil
}

func validateCache(cfg *Config, warnings *[]string) error {
	c := cfg.Cache
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
		b := c.Redis.Breaker
		if b.FailureRatePercent < 0 || b.FailureRatePercent > 100 {
			return fmt.Errorf("cache.redis.breaker.failure_rate_percent must be within [0, 100]")
		}
		if b.MinimumRequests < 0 || b.Window < 0 || b.OpenFor < 0 {
			return fmt.Errorf("cache.redis.breaker settings must be non-negative")
		}
		if c.MaxEntries > 0 {
			*warnings = append(*warnings, "cache.max_entries is ignored by the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q must be %q or %q", c.Backend, BackendMemory, BackendRedis)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be > 0")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0")
	}
	if c.MaxObjectBytes < 0 {
		return fmt.Errorf("cache.max_object_bytes must be >= 0")
	}
	for prefix, ttl := range c.RouteTTL {
		if !strings.HasPrefix(prefix, "/api/") {
			return fmt.Errorf("cache.route_ttl prefix %q must start with /api/", prefix)
		}
		if ttl <= 0 {
			return fmt.Errorf("cache.route_ttl %q must be > 0", prefix)
		}
	}
	if c.Coalesce && c.CoalesceWait <= 0 {
		return fmt.Errorf("cache.coalesce_wait must be > 0 when coalescing")
	}
	if c.SweepInterval > 0 && c.TTL > 0 && c.SweepInterval < c.TTL/10 {
		*warnings = append(*warnings, "cache.sweep_interval is much shorter than cache.ttl")
	}
	return nil
}

func validateStore(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("store.driver %q must be %q or %q", cfg.Store.Driver, DriverMemory, DriverPostgres)
	}
}

func validateAdmin(cfg *Config, warnings *[]string) error {
	a := cfg.Admin
	if a.Addr == "" && a.GRPCAddr == "" {
		return nil
	}
	if strings.TrimSpace(a.Token) == "" {
		return fmt.Errorf("admin.token is required when an admin listener is configured")
	}
	if (a.TLSCert == "") != (a.TLSKey == "") {
		return fmt.Errorf("admin.tls_cert and admin.tls_key must be set together")
	}
	if a.ClientCA != "" && a.TLSCert == "" {
		return fmt.Errorf("admin.client_ca requires admin tls")
	}
	if a.TLSCert == "" && a.Addr != "" {
		*warnings = append(*warnings, "admin http listener runs without tls")
	}
	if a.RateLimitRPS < 0 || a.RateLimitBurst < 0 || a.MaxAuthFailures < 0 {
		return fmt.Errorf("admin rate limit settings must be non-negative")
	}
	return nil
}

func validateAccounts(cfg *Config, warnings *[]string) error {
	if len(cfg.Accounts) == 0 {
		*warnings = append(*warnings, "no accounts configured; only public endpoints are usable")
		return nil
	}
	ids := make(map[string]struct{}, len(cfg.Accounts))
	tokens := make(map[string]struct{}, len(cfg.Accounts))
	for i, account := range cfg.Accounts {
		if account.ID == "" || account.Token == "" {
			return fmt.Errorf("accounts[%d]: id and token are required", i)
		}
		switch auth.Role(account.Role) {
		case auth.RoleAdmin, auth.RoleManager, auth.RoleOwner, auth.RoleStaff:
		default:
			return fmt.Errorf("accounts[%d]: unknown role %q", i, account.Role)
		}
		if _, dup := ids[account.ID]; dup {
			return fmt.Errorf("accounts[%d]: duplicate id %q", i, account.ID)
		}
		if _, dup := tokens[account.Token]; dup {
			return fmt.Errorf("accounts[%d]: duplicate token", i)
		}
		ids[account.ID] = struct{}{}
		tokens[account.Token] = struct{}{}
		if account.Username != "" && account.Password == "" {
			*warnings = append(*warnings, fmt.Sprintf("account %q has a username but no password", account.ID))
		}
	}
	return nil
}
