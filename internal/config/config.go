// Package config loads and validates container configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/containerfs/containerfs/internal/hostfs"
	"github.com/containerfs/containerfs/internal/metrics"
	"github.com/containerfs/containerfs/pkg/types"
)

// Configuration represents the complete container configuration
type Configuration struct {
	Container ContainerConfig      `yaml:"container"`
	Limits    types.ResourceLimits `yaml:"limits"`
	Storage   StorageConfig        `yaml:"storage"`
	Logging   LoggingConfig        `yaml:"logging"`
	Metrics   metrics.Config       `yaml:"metrics"`
}

// ContainerConfig represents settings for the container itself
type ContainerConfig struct {
	Path            string `yaml:"path"`
	Creator         string `yaml:"creator"`
	SecurityLevel   string `yaml:"security_level"`
	KEMMode         string `yaml:"kem_mode"`
	LenientLoad     bool   `yaml:"lenient_load"`
	RecreateCorrupt bool   `yaml:"recreate_corrupt"`
}

// StorageConfig selects the host backend holding the container blob
type StorageConfig struct {
	Backend string            `yaml:"backend"` // disk, memory or s3
	S3      hostfs.S3FSConfig `yaml:"s3"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfiguration returns a configuration with sensible defaults.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Container: ContainerConfig{
			Creator:       "containerfs",
			SecurityLevel: "standard",
		},
		Storage: StorageConfig{
			Backend: "disk",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: *metrics.DefaultConfig(),
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
func Load(path string) (*Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Configuration) Validate() error {
	if c.Container.Path == "" {
		return fmt.Errorf("container.path is required")
	}
	if _, ok := types.ParseSecurityLevel(c.Container.SecurityLevel); !ok {
		return fmt.Errorf("invalid security level: %s", c.Container.SecurityLevel)
	}

	switch c.Container.KEMMode {
	case "", "Kyber512", "Kyber768", "Kyber1024":
	default:
		return fmt.Errorf("invalid KEM mode: %s", c.Container.KEMMode)
	}

	switch c.Storage.Backend {
	case "", "disk", "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// SecurityLevel resolves the configured security level.
func (c *Configuration) SecurityLevel() types.SecurityLevel {
	level, _ := types.ParseSecurityLevel(c.Container.SecurityLevel)
	return level
}
