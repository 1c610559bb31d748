package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files.
	ConfigFileName = "labelscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LABELSCAN"
)

// Loader reads configuration from files and environment variables.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flag
// bindings made by the CLI layer are honored.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a dedicated viper instance; used by
// tests to avoid global state.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// LoadWithFile reads configuration from an explicit file path instead of
// searching the default locations.
func (l *Loader) LoadWithFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	return l.load(true)
}

// Load reads configuration from file and environment, layered over the
// defaults, and validates the result. A missing config file is fine.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("$HOME/.config/labelscan")
	l.v.AddConfigPath("/etc/labelscan")
	return l.load(false)
}

func (l *Loader) load(explicit bool) (*Config, error) {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	d := Default()
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("crops_dir", d.CropsDir)
	l.v.SetDefault("dom_dir", d.DOMDir)

	l.v.SetDefault("model.path", d.Model.Path)
	l.v.SetDefault("model.dict_path", d.Model.DictPath)
	l.v.SetDefault("model.image_height", d.Model.ImageHeight)
	l.v.SetDefault("model.num_threads", d.Model.NumThreads)

	l.v.SetDefault("pool.workers", d.Pool.Workers)
	l.v.SetDefault("pool.max_retries", d.Pool.MaxRetries)
	l.v.SetDefault("pool.attempt_timeout_sec", d.Pool.AttemptTimeoutSec)
	l.v.SetDefault("pool.backoff_base_ms", d.Pool.BackoffBaseMS)
	l.v.SetDefault("pool.backoff_max_ms", d.Pool.BackoffMaxMS)
	l.v.SetDefault("pool.max_crop_bytes", d.Pool.MaxCropBytes)
	l.v.SetDefault("pool.cache_size", d.Pool.CacheSize)

	l.v.SetDefault("batch.chunk_size", d.Batch.ChunkSize)
	l.v.SetDefault("batch.hygiene_every", d.Batch.HygieneEvery)
	l.v.SetDefault("batch.dom_max_age_hours", d.Batch.DOMMaxAgeHours)

	l.v.SetDefault("thresholds.high", d.Thresholds.High)
	l.v.SetDefault("thresholds.low", d.Thresholds.Low)

	l.v.SetDefault("validation.min_name_len", d.Validation.MinNameLen)
	l.v.SetDefault("validation.max_price", d.Validation.MaxPrice)
}
