// Package config loads the trust-layer settings file.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

// Defaults matching the reference deployment.
const (
	DefaultRotationThreshold = 10               // messages per certificate
	DefaultPoolSize          = 100              // certificates per entity
	DefaultCertValidity      = 10 * time.Minute // pseudonym certificate lifetime
)

// Config holds all configuration for the trust core.
type Config struct {
	CA       CAConfig       `yaml:"ca"`
	Security SecurityConfig `yaml:"security"`
	Server   ServerConfig   `yaml:"server"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CAConfig contains CA key material configuration.
type CAConfig struct {
	Name           string `yaml:"name"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`
	Passphrase     string `yaml:"passphrase"`
}

// SecurityConfig contains credential policy.
type SecurityConfig struct {
	// Algorithm is the signature algorithm for entity and CA keys.
	Algorithm string `yaml:"algorithm"`

	// CertValidity is the pseudonym certificate lifetime.
	CertValidity Duration `yaml:"cert_validity"`

	// PoolSize is the number of certificates pre-issued per entity.
	PoolSize int `yaml:"pool_size"`

	// RotationThreshold is the message count after which the active
	// certificate rotates. Zero disables rotation.
	RotationThreshold int `yaml:"rotation_threshold"`
}

// ServerConfig contains the admin API configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AuditConfig contains audit log configuration.
type AuditConfig struct {
	LogPath string `yaml:"log_path"`
}

// LoggingConfig contains technical log configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CA: CAConfig{
			Name:           "V2X-Root-CA",
			PrivateKeyPath: "keys/ca_pvt_key.pem",
			PublicKeyPath:  "keys/ca_pub_key.pem",
		},
		Security: SecurityConfig{
			Algorithm:         string(v2xcrypto.DefaultAlgorithm),
			CertValidity:      Duration(DefaultCertValidity),
			PoolSize:          DefaultPoolSize,
			RotationThreshold: DefaultRotationThreshold,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8470",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.CA.Name == "" {
		return fmt.Errorf("ca.name is required")
	}
	if _, err := v2xcrypto.ParseAlgorithm(c.Security.Algorithm); err != nil {
		return fmt.Errorf("security.algorithm: %w", err)
	}
	if time.Duration(c.Security.CertValidity) <= 0 {
		return fmt.Errorf("security.cert_validity must be positive")
	}
	if c.Security.PoolSize <= 0 {
		return fmt.Errorf("security.pool_size must be positive")
	}
	if c.Security.RotationThreshold < 0 {
		return fmt.Errorf("security.rotation_threshold must not be negative")
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "trace", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
		}
	}
	return nil
}

// Algorithm returns the parsed signature algorithm.
func (c *Config) Algorithm() v2xcrypto.AlgorithmID {
	alg, err := v2xcrypto.ParseAlgorithm(c.Security.Algorithm)
	if err != nil {
		return v2xcrypto.DefaultAlgorithm
	}
	return alg
}

// Duration is a time.Duration that unmarshals from YAML strings like "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
