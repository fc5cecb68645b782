package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies V2X_* environment
// overrides, and validates the result. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the default configuration with V2X_* environment
// overrides applied, for deployments without a settings file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg from V2X_* variables. A variable that is set but
// unparseable is an error, never a silent fallback to the default.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("V2X_CA_NAME"); v != "" {
		cfg.CA.Name = v
	}
	if v := os.Getenv("V2X_CA_PASSPHRASE"); v != "" {
		cfg.CA.Passphrase = v
	}
	if v := os.Getenv("V2X_ALGORITHM"); v != "" {
		cfg.Security.Algorithm = v
	}
	if v := os.Getenv("V2X_CERT_VALIDITY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid V2X_CERT_VALIDITY %q: %w", v, err)
		}
		cfg.Security.CertValidity = Duration(d)
	}
	if v := os.Getenv("V2X_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid V2X_POOL_SIZE %q: %w", v, err)
		}
		cfg.Security.PoolSize = n
	}
	if v := os.Getenv("V2X_ROTATION_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid V2X_ROTATION_THRESHOLD %q: %w", v, err)
		}
		cfg.Security.RotationThreshold = n
	}
	if v := os.Getenv("V2X_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("V2X_AUDIT_LOG"); v != "" {
		cfg.Audit.LogPath = v
	}
	if v := os.Getenv("V2X_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
