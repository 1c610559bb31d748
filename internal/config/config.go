// Package config defines the application configuration and its loading
// from files, environment variables and flags.
package config

import (
	"fmt"
	"time"
)

// Config is the complete configuration for the labelscan extraction
// pipeline. Values can come from a config file, LABELSCAN_* environment
// variables or command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`

	CropsDir string `mapstructure:"crops_dir" yaml:"crops_dir" json:"crops_dir"`
	DOMDir   string `mapstructure:"dom_dir" yaml:"dom_dir" json:"dom_dir"`

	Model      ModelConfig      `mapstructure:"model" yaml:"model" json:"model"`
	Pool       PoolConfig       `mapstructure:"pool" yaml:"pool" json:"pool"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation" json:"validation"`
}

// ModelConfig describes the ONNX recognition model.
type ModelConfig struct {
	Path        string `mapstructure:"path" yaml:"path" json:"path"`
	DictPath    string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight int    `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// PoolConfig tunes the OCR worker pool.
type PoolConfig struct {
	Workers           int   `mapstructure:"workers" yaml:"workers" json:"workers"`
	MaxRetries        int   `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	AttemptTimeoutSec int   `mapstructure:"attempt_timeout_sec" yaml:"attempt_timeout_sec" json:"attempt_timeout_sec"`
	BackoffBaseMS     int   `mapstructure:"backoff_base_ms" yaml:"backoff_base_ms" json:"backoff_base_ms"`
	BackoffMaxMS      int   `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms" json:"backoff_max_ms"`
	MaxCropBytes      int64 `mapstructure:"max_crop_bytes" yaml:"max_crop_bytes" json:"max_crop_bytes"`
	CacheSize         int   `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
}

// BatchConfig tunes the orchestrator.
type BatchConfig struct {
	ChunkSize      int `mapstructure:"chunk_size" yaml:"chunk_size" json:"chunk_size"`
	HygieneEvery   int `mapstructure:"hygiene_every" yaml:"hygiene_every" json:"hygiene_every"`
	DOMMaxAgeHours int `mapstructure:"dom_max_age_hours" yaml:"dom_max_age_hours" json:"dom_max_age_hours"`
}

// ThresholdConfig holds the confidence bands for source selection.
type ThresholdConfig struct {
	High float64 `mapstructure:"high" yaml:"high" json:"high"`
	Low  float64 `mapstructure:"low" yaml:"low" json:"low"`
}

// ValidationConfig holds the domain plausibility bounds.
type ValidationConfig struct {
	MinNameLen int     `mapstructure:"min_name_len" yaml:"min_name_len" json:"min_name_len"`
	MaxPrice   float64 `mapstructure:"max_price" yaml:"max_price" json:"max_price"`
}

// Default returns the configuration with production defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		CropsDir: "data/crops",
		DOMDir:   "data/dom",
		Model: ModelConfig{
			Path:        "models/rec.onnx",
			DictPath:    "models/dict.txt",
			ImageHeight: 48,
		},
		Pool: PoolConfig{
			Workers:           2,
			MaxRetries:        3,
			AttemptTimeoutSec: 30,
			BackoffBaseMS:     250,
			BackoffMaxMS:      5000,
			MaxCropBytes:      10 << 20,
			CacheSize:         256,
		},
		Batch: BatchConfig{
			ChunkSize:      5,
			HygieneEvery:   10,
			DOMMaxAgeHours: 0,
		},
		Thresholds: ThresholdConfig{High: 0.8, Low: 0.6},
		Validation: ValidationConfig{MinNameLen: 3, MaxPrice: 100000},
	}
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (p PoolConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSec) * time.Second
}

// BackoffBase returns the initial backoff delay as a duration.
func (p PoolConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseMS) * time.Millisecond
}

// BackoffMax returns the backoff ceiling as a duration.
func (p PoolConfig) BackoffMax() time.Duration {
	return time.Duration(p.BackoffMaxMS) * time.Millisecond
}

// DOMMaxAge returns the snapshot staleness bound; zero disables the check.
func (b BatchConfig) DOMMaxAge() time.Duration {
	return time.Duration(b.DOMMaxAgeHours) * time.Hour
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Pool.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.Pool.MaxRetries)
	}
	if c.Pool.AttemptTimeoutSec <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %d", c.Pool.AttemptTimeoutSec)
	}
	if c.Pool.BackoffBaseMS > c.Pool.BackoffMaxMS {
		return fmt.Errorf("backoff base (%dms) cannot exceed backoff max (%dms)",
			c.Pool.BackoffBaseMS, c.Pool.BackoffMaxMS)
	}
	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Batch.ChunkSize)
	}
	if c.Thresholds.High < c.Thresholds.Low {
		return fmt.Errorf("high threshold (%.2f) cannot be below low threshold (%.2f)",
			c.Thresholds.High, c.Thresholds.Low)
	}
	if c.Thresholds.High > 1 || c.Thresholds.Low < 0 {
		return fmt.Errorf("thresholds must lie in [0,1], got high=%.2f low=%.2f",
			c.Thresholds.High, c.Thresholds.Low)
	}
	return nil
}
