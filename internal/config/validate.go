package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks configuration invariants and returns actionable errors.
// Identifier resolution (transport, greeting, middleware names) happens later
// against the registries; this only rejects values that can never be valid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	if cfg.Port != nil && (*cfg.Port < 0 || *cfg.Port > 65535) {
		errs = append(errs, fmt.Errorf("port %d out of range", *cfg.Port))
	}
	if cfg.LaunchTimeout != "" {
		d, err := time.ParseDuration(cfg.LaunchTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid launch_timeout %q: %w", cfg.LaunchTimeout, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("launch_timeout %q must be positive", cfg.LaunchTimeout))
		}
	}
	return errors.Join(errs...)
}
