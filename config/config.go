// Package config loads runtime settings from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/callback-runtime/engine"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/runtime"
)

const maxConfigSize = 1 << 20

// Config is the top-level configuration file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Invoker InvokerConfig `yaml:"invoker"`
	Guest   GuestConfig   `yaml:"guest"`
}

// LogConfig controls the zap logger. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// InvokerConfig controls the dispatchers.
type InvokerConfig struct {
	Serialize     bool `yaml:"serialize"`
	MaxConcurrent int  `yaml:"max_concurrent"`
	Metrics       bool `yaml:"metrics"`
	Cleanup       bool `yaml:"cleanup"`
}

// GuestConfig names the wasm guest and its ABI exports.
type GuestConfig struct {
	Path             string `yaml:"path"`
	AllocExport      string `yaml:"alloc_export"`
	InvokeExport     string `yaml:"invoke_export"`
	FreeExport       string `yaml:"free_export"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Guest: GuestConfig{
			AllocExport:  engine.DefaultAllocExport,
			InvokeExport: engine.DefaultInvokeExport,
			FreeExport:   engine.DefaultFreeExport,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "stat "+path)
	}
	if info.Size() > maxConfigSize {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("%s is %d bytes, limit %d", path, info.Size(), maxConfigSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("log.level: %v", err))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "log rotation limits must not be negative")
	}
	if c.Invoker.MaxConcurrent < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "invoker.max_concurrent must not be negative")
	}
	if c.Invoker.Serialize && c.Invoker.MaxConcurrent > 1 {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("invoker.serialize conflicts with max_concurrent %d", c.Invoker.MaxConcurrent))
	}
	if c.Guest.MemoryLimitPages > 65536 {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("guest.memory_limit_pages %d exceeds 65536", c.Guest.MemoryLimitPages))
	}
	return nil
}

// Engine returns the engine settings.
func (c *Config) Engine() *engine.Config {
	return &engine.Config{
		AllocExport:      c.Guest.AllocExport,
		InvokeExport:     c.Guest.InvokeExport,
		FreeExport:       c.Guest.FreeExport,
		MemoryLimitPages: c.Guest.MemoryLimitPages,
	}
}

// Runtime returns runtime settings. reg is used only when metrics are enabled.
func (c *Config) Runtime(logger *zap.Logger, reg prometheus.Registerer) runtime.Config {
	rc := runtime.Config{
		Logger:        logger,
		Engine:        c.Engine(),
		MaxConcurrent: c.Invoker.MaxConcurrent,
		Cleanup:       c.Invoker.Cleanup,
	}
	if c.Invoker.Serialize {
		rc.MaxConcurrent = 1
	}
	if c.Invoker.Metrics {
		rc.Metrics = reg
	}
	return rc
}
