/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"errors"

	"github.com/acronis/go-resolvekit/config"
)

const cfgDefaultKeyPrefix = "profiler"

const (
	cfgKeyEnabled = "enabled"
	cfgKeyAddress = "address"
)

// DefaultAddress is bound to loopback: pprof must not be reachable from outside the host.
const DefaultAddress = "127.0.0.1:6060"

// Config controls the optional pprof listener.
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`

	keyPrefix string
}

var (
	_ config.Config            = (*Config)(nil)
	_ config.KeyPrefixProvider = (*Config)(nil)
)

// ConfigOption customizes Config creation.
type ConfigOption func(*Config)

// WithKeyPrefix sets the key under which config.Loader looks for the profiler parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) { c.keyPrefix = keyPrefix }
}

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewDefaultConfig is NewConfig with the default address. Profiling stays disabled.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = DefaultAddress
	return cfg
}

func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
}

func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty when profiling is enabled"))
	}
	return nil
}
