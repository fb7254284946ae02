// Package config loads jsdos settings from an optional YAML file and
// JSDOS_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the jsdos commands.
type Config struct {
	// Listen is the serve address.
	Listen string `yaml:"listen" env:"JSDOS_LISTEN"`
	// Engine is the path to the engine wasm binary.
	Engine string `yaml:"engine" env:"JSDOS_ENGINE"`
	// BundleRoot is the directory page-submitted local locators must sit
	// under. Empty means the working directory.
	BundleRoot string `yaml:"bundle_root" env:"JSDOS_BUNDLE_ROOT"`
	// AllowRemote permits http and https bundle locators.
	AllowRemote bool `yaml:"allow_remote" env:"JSDOS_ALLOW_REMOTE"`
	// TempDir is the parent directory for extracted archives.
	TempDir string `yaml:"temp_dir" env:"JSDOS_TEMP_DIR"`
	// QueueDepth is the per-instance frame and sound queue length.
	QueueDepth int `yaml:"queue_depth" env:"JSDOS_QUEUE_DEPTH"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"JSDOS_LOG_LEVEL"`
	// OTelEndpoint enables tracing to an OTLP/HTTP collector.
	OTelEndpoint string `yaml:"otel_endpoint" env:"JSDOS_OTEL_ENDPOINT"`
	// ShutdownTimeout bounds stopping sessions on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"JSDOS_SHUTDOWN_TIMEOUT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:          ":8080",
		Engine:          "wdosbox.wasm",
		QueueDepth:      8,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("queue depth must be positive, got %d", c.QueueDepth))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout is negative"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
