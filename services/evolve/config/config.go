// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the subsystem configuration from YAML.
//
// Thread Safety:
//
//	Load returns a fresh Config on every call; the result is owned by the
//	caller and is not mutated by this package afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize is the maximum allowed config file size (1MB).
const MaxYAMLFileSize = 1024 * 1024

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m" as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full subsystem configuration.
type Config struct {
	// RepoRoot is the working tree the applier mutates.
	RepoRoot string `yaml:"repo_root" validate:"required"`

	// RegistryPath is the JSONL event log location.
	RegistryPath string `yaml:"registry_path" validate:"required"`

	// RegistryMaxBytes overrides the rotation threshold. Zero keeps the
	// default.
	RegistryMaxBytes int64 `yaml:"registry_max_bytes" validate:"gte=0"`

	// GitTimeout bounds each git subprocess invocation.
	GitTimeout Duration `yaml:"git_timeout" validate:"gt=0"`

	// DiffContextLines is the unified-diff context width.
	DiffContextLines int `yaml:"diff_context_lines" validate:"gte=0"`

	// StorePath is the SQLite run/variant database location. Empty
	// disables the store-backed commands.
	StorePath string `yaml:"store_path"`

	// Attribution tunes the lift classifier.
	Attribution AttributionConfig `yaml:"attribution"`
}

// AttributionConfig tunes the lift classifier.
type AttributionConfig struct {
	// SensitivePaths are the files whose modification by a system patch
	// counts as a content-patch signal. Empty keeps the defaults.
	SensitivePaths []string `yaml:"sensitive_paths"`

	// SpecializedOperators is the operator allow-list. Empty keeps the
	// defaults.
	SpecializedOperators []string `yaml:"specialized_operators"`

	// AdvancedEngineMarkers are engine-name substrings marking an
	// advanced capability tier. Empty keeps the defaults.
	AdvancedEngineMarkers []string `yaml:"advanced_engine_markers"`

	// RecentCommits is how far back the content-patch check looks.
	// Zero keeps the default.
	RecentCommits int `yaml:"recent_commits" validate:"gte=0"`

	// BaselineWindow is how many recent comparable runs feed the
	// baseline average. Zero keeps the default.
	BaselineWindow int `yaml:"baseline_window" validate:"gte=0"`
}

// DefaultBaselineWindow is the baseline averaging window.
const DefaultBaselineWindow = 10

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RepoRoot:         ".",
		RegistryPath:     "evolve_events.jsonl",
		GitTimeout:       Duration(30 * time.Second),
		DiffContextLines: 3,
		Attribution: AttributionConfig{
			BaselineWindow: DefaultBaselineWindow,
		},
	}
}

// Load reads, parses and validates a YAML config file. Omitted fields
// fall back to the defaults.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config %s exceeds %d bytes", path, MaxYAMLFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
