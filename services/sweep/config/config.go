// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the sweep configuration file.
//
// Example bpsweep.yaml:
//
//	simulator:
//	  driver: simulator/Run.pl
//	  bench_db: simulator/bench.db
//	  binary: simulator/ss3/sim-outorder
//	  results_dir: simulator/results
//	  fast_forward: 1000000
//	  max_inst: 1000000
//	sweep:
//	  benchmarks: [gcc, li]
//	  sizes: [512, 1024, 2048]
//	  families: [bimod, gshare]
//	execution:
//	  concurrency: 4
//	  timeout: 30m
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config is the complete sweep configuration.
type Config struct {
	Simulator SimulatorConfig `yaml:"simulator"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Execution ExecutionConfig `yaml:"execution"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SimulatorConfig locates the simulator and sets its run length.
type SimulatorConfig struct {
	// Driver is the launcher script (Run.pl).
	Driver string `yaml:"driver" validate:"required"`

	// BenchDB is the launcher's benchmark database.
	BenchDB string `yaml:"bench_db" validate:"required"`

	// Binary is the simulator executable (sim-outorder).
	Binary string `yaml:"binary" validate:"required"`

	// ResultsDir receives job logs and scratch directories.
	ResultsDir string `yaml:"results_dir" validate:"required"`

	// FastForward is the instruction count skipped before timing.
	FastForward int64 `yaml:"fast_forward" validate:"gte=0"`

	// MaxInst is the instruction count simulated after fast-forward.
	MaxInst int64 `yaml:"max_inst" validate:"gt=0"`
}

// SweepConfig defines the cross-product.
type SweepConfig struct {
	Benchmarks []string `yaml:"benchmarks" validate:"required,min=1,unique,dive,required,excludesall=/"`
	Sizes      []int    `yaml:"sizes" validate:"required,min=1,unique,dive,tablesize"`

	// Families selects table-backed families. Empty means all.
	Families []string `yaml:"families,omitempty" validate:"unique,dive,sizedfamily"`
}

// ExecutionConfig controls the worker pool.
type ExecutionConfig struct {
	// Concurrency bounds parallel jobs. Zero means one per CPU.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`

	// Timeout kills a job after this long. Zero disables it.
	Timeout Duration `yaml:"timeout"`

	// LaunchRate limits launches per second. Zero disables it.
	LaunchRate float64 `yaml:"launch_rate" validate:"gte=0"`

	// MaxOutputBytes caps each captured stream. Zero keeps the default.
	MaxOutputBytes int `yaml:"max_output_bytes" validate:"gte=0"`
}

// StoreConfig enables the resume cache.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty disables the store.
	Path string `yaml:"path"`

	// Resume skips jobs whose records are already stored.
	Resume bool `yaml:"resume"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	Traces       string `yaml:"traces" validate:"omitempty,oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Outputs:
//
//	*Config - Configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			Driver:      "simulator/Run.pl",
			BenchDB:     "simulator/bench.db",
			Binary:      "simulator/ss3/sim-outorder",
			ResultsDir:  "simulator/results",
			FastForward: 1000000,
			MaxInst:     1000000,
		},
		Sweep: SweepConfig{
			Benchmarks: []string{"compress", "gcc", "go", "ijpeg", "li", "m88ksim", "perl", "vortex"},
			Sizes:      []int{512, 1024, 2048, 4096},
		},
		Execution: ExecutionConfig{
			Timeout: Duration{Duration: time.Hour},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "bpsweep",
			Traces:      "none",
			Metrics:     "none",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
//
// Description:
//
//	Fields absent from the file keep their DefaultConfig values. An empty
//	path returns the validated defaults.
//
// Inputs:
//
//	path - Path to the YAML file, or ""
//
// Outputs:
//
//	*Config - The loaded configuration
//	error - Non-nil if the file cannot be read, parsed, or validated
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks struct tags and the predictor-specific rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = describe(fe)
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Write marshals the configuration to path as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GeneratorConfig maps the configuration onto the job generator input.
func (c *Config) GeneratorConfig() job.GeneratorConfig {
	families := make([]predictor.Family, len(c.Sweep.Families))
	for i, name := range c.Sweep.Families {
		families[i] = predictor.Family(name)
	}
	return job.GeneratorConfig{
		Driver:      c.Simulator.Driver,
		BenchDB:     c.Simulator.BenchDB,
		Simulator:   c.Simulator.Binary,
		ResultsDir:  c.Simulator.ResultsDir,
		FastForward: c.Simulator.FastForward,
		MaxInst:     c.Simulator.MaxInst,
		Benchmarks:  c.Sweep.Benchmarks,
		Sizes:       c.Sweep.Sizes,
		Families:    families,
	}
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a string ("30m") in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30m\": %w", err)
	}
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration must not be negative", value.Line)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// validate is the shared validator with the sweep's custom rules.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("tablesize", validateTableSize)
	_ = validate.RegisterValidation("sizedfamily", validateSizedFamily)
}

// validateTableSize accepts powers of two no smaller than predictor.MinSize.
func validateTableSize(fl validator.FieldLevel) bool {
	return predictor.ValidateSize(int(fl.Field().Int())) == nil
}

// validateSizedFamily accepts table-backed family names.
func validateSizedFamily(fl validator.FieldLevel) bool {
	f, err := predictor.ParseFamily(fl.Field().String())
	return err == nil && f.Sized()
}

// describe renders one validation failure for humans.
func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "tablesize":
		return fmt.Sprintf("%s: %v is not a power of two >= %d", field, fe.Value(), predictor.MinSize)
	case "sizedfamily":
		return fmt.Sprintf("%s: %q is not a table-backed predictor family", field, fe.Value())
	case "unique":
		return field + " must not contain duplicates"
	case "oneof":
		return fmt.Sprintf("%s: %v must be one of [%s]", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
