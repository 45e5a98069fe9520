/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"errors"
	"time"

	"github.com/acronis/go-resolvekit/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress                 = "address"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyTimeoutsIdle            = "timeouts.idle"
	cfgKeyTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// Defaults of the server configuration.
const (
	DefaultAddress              = ":3000"
	DefaultWriteTimeout         = time.Minute
	DefaultReadTimeout          = 15 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultIdleTimeout          = time.Minute
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultMaxBodySize          = 1 << 20
	DefaultSlowRequestThreshold = time.Second
)

// Config is the configuration of the API server, read under the "server" key by default.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var (
	_ config.Config            = (*Config)(nil)
	_ config.KeyPrefixProvider = (*Config)(nil)
)

// TimeoutsConfig holds the timeouts of http.Server and the graceful shutdown timeout.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LimitsConfig holds request limits.
type LimitsConfig struct {
	// MaxBodySizeBytes caps request bodies (e.g. POST /users). Zero disables the limit.
	MaxBodySizeBytes config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// LogConfig controls request logging.
type LogConfig struct {
	RequestStart         bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders       []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints    []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// ConfigOption customizes Config creation.
type ConfigOption func(*Config)

// WithKeyPrefix sets the key under which config.Loader looks for the server parameters.
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

// NewDefaultConfig creates a Config filled with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = DefaultAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(DefaultWriteTimeout),
		Read:       config.TimeDuration(DefaultReadTimeout),
		ReadHeader: config.TimeDuration(DefaultReadHeaderTimeout),
		Idle:       config.TimeDuration(DefaultIdleTimeout),
		Shutdown:   config.TimeDuration(DefaultShutdownTimeout),
	}
	cfg.Limits.MaxBodySizeBytes = DefaultMaxBodySize
	cfg.Log.SlowRequestThreshold = config.TimeDuration(DefaultSlowRequestThreshold)
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	for key, val := range map[string]interface{}{
		cfgKeyAddress:                 DefaultAddress,
		cfgKeyTimeoutsWrite:           DefaultWriteTimeout,
		cfgKeyTimeoutsRead:            DefaultReadTimeout,
		cfgKeyTimeoutsReadHeader:      DefaultReadHeaderTimeout,
		cfgKeyTimeoutsIdle:            DefaultIdleTimeout,
		cfgKeyTimeoutsShutdown:        DefaultShutdownTimeout,
		cfgKeyLimitsMaxBodySize:       DefaultMaxBodySize,
		cfgKeyLogRequestStart:         false,
		cfgKeyLogSlowRequestThreshold: DefaultSlowRequestThreshold,
	} {
		dp.SetDefault(key, val)
	}
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty"))
	}

	for _, t := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyTimeoutsWrite, &c.Timeouts.Write},
		{cfgKeyTimeoutsRead, &c.Timeouts.Read},
		{cfgKeyTimeoutsReadHeader, &c.Timeouts.ReadHeader},
		{cfgKeyTimeoutsIdle, &c.Timeouts.Idle},
		{cfgKeyTimeoutsShutdown, &c.Timeouts.Shutdown},
		{cfgKeyLogSlowRequestThreshold, &c.Log.SlowRequestThreshold},
	} {
		var d time.Duration
		if d, err = dp.GetDuration(t.key); err != nil {
			return err
		}
		if d < 0 {
			return dp.WrapKeyErr(t.key, errors.New("should be >= 0"))
		}
		*t.dst = config.TimeDuration(d)
	}

	if c.Limits.MaxBodySizeBytes, err = dp.GetByteSize(cfgKeyLimitsMaxBodySize); err != nil {
		return err
	}

	if c.Log.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if c.Log.RequestHeaders, err = dp.GetStringSlice(cfgKeyLogRequestHeaders); err != nil {
		return err
	}
	if c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoints); err != nil {
		return err
	}
	return nil
}
