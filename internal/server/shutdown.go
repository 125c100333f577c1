package server

import (
	"fmt"
	"time"

	"rental_dashboard/internal/config"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultForceClose      = time.Second
)

type ShutdownConfig struct {
	// Drain is a pause after listeners close, before waiting on requests.
	Drain           time.Duration
	GracefulTimeout time.Duration
	ForceClose      time.Duration
}

func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracefulTimeout: defaultGracefulTimeout,
		ForceClose:      defaultForceClose,
	}
}

func ShutdownFromConfig(cfg config.ShutdownConfig) (ShutdownConfig, error) {
	if cfg.Drain < 0 || cfg.GracefulTimeout < 0 || cfg.ForceClose < 0 {
		return ShutdownConfig{}, fmt.Errorf("shutdown durations must be non-negative")
	}
	return ApplyShutdownDefaults(ShutdownConfig{
		Drain:           cfg.Drain,
		GracefulTimeout: cfg.GracefulTimeout,
		ForceClose:      cfg.ForceClose,
	}), nil
}

func ApplyShutdownDefaults(cfg ShutdownConfig) ShutdownConfig {
	defaults := DefaultShutdownConfig()
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaults.GracefulTimeout
	}
	if cfg.ForceClose <= 0 {
		cfg.ForceClose = defaults.ForceClose
	}
	return cfg
}
