package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate validates a configuration and returns an error if invalid
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}
	config.applyDefaults()

	if err := validateWorker(config.Worker); err != nil {
		return fmt.Errorf("worker validation failed: %w", err)
	}

	if err := validateStore(config.Store); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if config.NATS != nil && strings.TrimSpace(config.NATS.Servers) == "" {
		return fmt.Errorf("nats servers are required when the nats block is present")
	}

	if len(config.Destinations) == 0 {
		return fmt.Errorf("at least one destination must be defined")
	}
	seen := make(map[string]bool)
	for _, d := range config.Destinations {
		if !isValidName(d.ID) {
			return fmt.Errorf("destination id %q must contain only alphanumeric characters, hyphens, and underscores", d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate destination: %q", d.ID)
		}
		seen[d.ID] = true
	}

	packs := make(map[string]bool)
	for _, b := range config.BuildPacks {
		if packs[b.Name] {
			return fmt.Errorf("duplicate buildpack block: %q", b.Name)
		}
		packs[b.Name] = true
	}

	return nil
}

func validateWorker(w *WorkerConfig) error {
	if w.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", w.Concurrency)
	}
	d, err := time.ParseDuration(w.StaleGracePeriod)
	if err != nil {
		return fmt.Errorf("invalid stale_grace_period %q: %w", w.StaleGracePeriod, err)
	}
	if d <= 0 {
		return fmt.Errorf("stale_grace_period must be positive, got %s", d)
	}
	return nil
}

func validateStore(s *StoreConfig) error {
	switch s.Type {
	case StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
	case StoreHTTP:
		if s.URL == "" {
			return fmt.Errorf("http store requires a url")
		}
	default:
		return fmt.Errorf("unknown store type %q (want %s or %s)", s.Type, StoreSQLite, StoreHTTP)
	}
	return nil
}

// isValidName checks if a name contains only valid characters
func isValidName(name string) bool {
	if name == "" {
		return false
	}

	for _, ch := range name {
		if !isAlphaNumericOrDash(ch) {
			return false
		}
	}

	return true
}

// isAlphaNumericOrDash checks if a character is alphanumeric or a dash
func isAlphaNumericOrDash(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' ||
		ch == '_'
}
