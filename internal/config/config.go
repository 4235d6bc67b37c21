// Package config loads the journal's push settings from the workspace config
// file, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openmined/journalsync/internal/blob"
	"github.com/openmined/journalsync/internal/sync"
)

const EnvPrefix = "JOURNALSYNC"

var ErrInvalidConfig = errors.New("invalid config")

type RemoteConfig struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type SyncConfig struct {
	Include           []string   `json:"include,omitempty"`
	Exclude           []string   `json:"exclude,omitempty"`
	Concurrency       int        `json:"concurrency,omitempty"`
	LastPushTimestamp *time.Time `json:"lastPushTimestamp,omitempty"`
}

type Config struct {
	Remote RemoteConfig     `json:"remote"`
	Sync   SyncConfig       `json:"sync"`
	Retry  sync.RetryPolicy `json:"retry"`
	Path   string           `json:"-"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	retry := sync.DefaultRetryPolicy()
	v.SetDefault("remote.provider", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.region", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("sync.include", sync.DefaultInclude)
	v.SetDefault("sync.exclude", []string{})
	v.SetDefault("sync.concurrency", sync.DefaultConcurrency)
	v.SetDefault("sync.lastPushTimestamp", "")
	v.SetDefault("retry.maxAttempts", retry.MaxAttempts)
	v.SetDefault("retry.initialDelay", retry.InitialDelay)
	v.SetDefault("retry.maxDelay", retry.MaxDelay)
	v.SetDefault("retry.multiplier", retry.BackoffMultiplier)
}

// Load reads path into v, layers JOURNALSYNC_* environment variables on top
// and returns the validated result. A missing file is not an error; flags
// must already be bound to v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Path: path,
		Remote: RemoteConfig{
			Provider: strings.ToLower(strings.TrimSpace(v.GetString("remote.provider"))),
			URL:      strings.TrimSpace(v.GetString("remote.url")),
			Region:   v.GetString("remote.region"),
			Endpoint: v.GetString("remote.endpoint"),
		},
		Sync: SyncConfig{
			Include:     v.GetStringSlice("sync.include"),
			Exclude:     v.GetStringSlice("sync.exclude"),
			Concurrency: v.GetInt("sync.concurrency"),
		},
		Retry: sync.RetryPolicy{
			MaxAttempts:       v.GetInt("retry.maxAttempts"),
			InitialDelay:      v.GetDuration("retry.initialDelay"),
			MaxDelay:          v.GetDuration("retry.maxDelay"),
			BackoffMultiplier: v.GetFloat64("retry.multiplier"),
		},
	}

	if raw := v.GetString("sync.lastPushTimestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sync.lastPushTimestamp %q: %v", ErrInvalidConfig, raw, err)
		}
		ts = ts.UTC()
		cfg.Sync.LastPushTimestamp = &ts
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Remote.Provider == "" {
		return fmt.Errorf("%w: remote.provider is required", ErrInvalidConfig)
	}
	if c.Remote.Provider != blob.ProviderMemory && c.Remote.URL == "" {
		return fmt.Errorf("%w: remote.url is required for provider %q", ErrInvalidConfig, c.Remote.Provider)
	}
	if err := sync.ValidatePatterns(c.Sync.Include); err != nil {
		return fmt.Errorf("%w: sync.include: %v", ErrInvalidConfig, err)
	}
	if err := sync.ValidatePatterns(c.Sync.Exclude); err != nil {
		return fmt.Errorf("%w: sync.exclude: %v", ErrInvalidConfig, err)
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("%w: sync.concurrency must not be negative", ErrInvalidConfig)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BlobConfig returns the adapter settings for the configured remote.
func (c *Config) BlobConfig(creds blob.Credentials) *blob.Config {
	return &blob.Config{
		Provider:    c.Remote.Provider,
		URL:         c.Remote.URL,
		Region:      c.Remote.Region,
		Endpoint:    c.Remote.Endpoint,
		Credentials: creds,
	}
}
