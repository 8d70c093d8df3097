// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package config reads the YAML configuration of the exql command.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/canonical/exql"
)

// Config holds the settings of the exql command.
type Config struct {
	// Driver is the database/sql driver name.
	Driver string `mapstructure:"driver"`
	// DSN is the data source name passed to the driver.
	DSN string `mapstructure:"dsn"`
	// StatementCacheSize bounds the prepared statements kept open per
	// database. Zero disables the cache.
	StatementCacheSize int `mapstructure:"statement-cache-size"`
	// Constants are bound to every template with the "$" sigil.
	Constants map[string]any `mapstructure:"constants"`
	// Init holds statements run on the database before any template.
	Init []string `mapstructure:"init"`
	// LogLevel is the minimum level of the log records written to stderr.
	LogLevel slog.Level `mapstructure:"log-level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Driver:             "sqlite3",
		DSN:                ":memory:",
		StatementCacheSize: exql.DefaultStatementCacheSize,
		Constants:          map[string]any{},
		LogLevel:           slog.LevelWarn,
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	cfg := Default()
	if err := decode(raw, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("invalid config: driver is empty")
	}
	if c.StatementCacheSize < 0 {
		return fmt.Errorf("invalid config: statement-cache-size must not be negative, got %d", c.StatementCacheSize)
	}
	return nil
}

func decode(data map[string]any, out *Config) error {
	conf := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			stringifyKeysHook,
		),
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(conf)
	if err != nil {
		return err
	}
	return decoder.Decode(data)
}

// stringifyKeysHook converts nested YAML mappings with non-string keys so
// they can be stored as constants.
func stringifyKeysHook(from reflect.Type, _ reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Map {
		return data, nil
	}
	return normalizeMapKeys(data), nil
}

func normalizeMapKeys(val any) any {
	switch typed := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = normalizeMapKeys(value)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[fmt.Sprintf("%v", key)] = normalizeMapKeys(value)
		}
		return out
	case []any:
		for i := range typed {
			typed[i] = normalizeMapKeys(typed[i])
		}
		return typed
	default:
		return val
	}
}
