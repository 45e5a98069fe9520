/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-resolvekit/config"
	"github.com/acronis/go-resolvekit/fetchpool"
	"github.com/acronis/go-resolvekit/internal/ratelimit"
)

const cfgDefaultKeyPrefix = "resolver"

const (
	cfgKeyCacheMaxEntries      = "cache.maxEntries"
	cfgKeyCacheTTL             = "cache.ttl"
	cfgKeyCacheCleanupInterval = "cache.cleanupInterval"
	cfgKeyWorkers              = "workers"
	cfgKeyFetchTimeout         = "fetchTimeout"
	cfgKeyRateLimitAlg         = "rateLimit.alg"
	cfgKeyRateLimitMaxKeys     = "rateLimit.maxKeys"
	cfgKeyRateLimitLongCap     = "rateLimit.long.capacity"
	cfgKeyRateLimitLongRefill  = "rateLimit.long.refill"
	cfgKeyRateLimitLongPeriod  = "rateLimit.long.period"
	cfgKeyRateLimitShortCap    = "rateLimit.short.capacity"
	cfgKeyRateLimitShortRefill = "rateLimit.short.refill"
	cfgKeyRateLimitShortPeriod = "rateLimit.short.period"
)

// Default values.
const (
	DefaultCacheMaxEntries      = 1000
	DefaultCacheTTL             = 60 * time.Second
	DefaultCacheCleanupInterval = 5 * time.Second
)

// Config represents a set of configuration parameters for Resolver.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	// Workers is the maximum number of origin fetches in progress.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`

	// FetchTimeout limits a single origin fetch. Zero means no limit.
	FetchTimeout config.TimeDuration `mapstructure:"fetchTimeout" yaml:"fetchTimeout" json:"fetchTimeout"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// CacheConfig is a configuration for the entity cache.
type CacheConfig struct {
	MaxEntries      int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	TTL             config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
}

// RateLimitConfig is a configuration for per-client rate limiting.
type RateLimitConfig struct {
	Alg     string       `mapstructure:"alg" yaml:"alg" json:"alg"`
	MaxKeys int          `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	Long    WindowConfig `mapstructure:"long" yaml:"long" json:"long"`
	Short   WindowConfig `mapstructure:"short" yaml:"short" json:"short"`
}

// WindowConfig is a configuration for a single token bucket: Refill tokens are added every Period,
// up to Capacity.
type WindowConfig struct {
	Capacity int                 `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	Refill   int                 `mapstructure:"refill" yaml:"refill" json:"refill"`
	Period   config.TimeDuration `mapstructure:"period" yaml:"period" json:"period"`
}

func (wc WindowConfig) params() ratelimit.TokenBucketParams {
	return ratelimit.TokenBucketParams{
		Capacity: wc.Capacity,
		Refill:   ratelimit.Rate{Count: wc.Refill, Duration: time.Duration(wc.Period)},
	}
}

func windowConfigFromParams(p ratelimit.TokenBucketParams) WindowConfig {
	return WindowConfig{Capacity: p.Capacity, Refill: p.Refill.Count, Period: config.TimeDuration(p.Refill.Duration)}
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Cache = CacheConfig{
		MaxEntries:      DefaultCacheMaxEntries,
		TTL:             config.TimeDuration(DefaultCacheTTL),
		CleanupInterval: config.TimeDuration(DefaultCacheCleanupInterval),
	}
	cfg.Workers = fetchpool.DefaultWorkers
	cfg.RateLimit = RateLimitConfig{
		Alg:     string(ratelimit.AlgTokenBucket),
		MaxKeys: ratelimit.DefaultMaxKeys,
		Long:    windowConfigFromParams(ratelimit.DefaultLongWindow),
		Short:   windowConfigFromParams(ratelimit.DefaultShortWindow),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for resolver in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyCacheMaxEntries, DefaultCacheMaxEntries)
	dp.SetDefault(cfgKeyCacheTTL, DefaultCacheTTL.String())
	dp.SetDefault(cfgKeyCacheCleanupInterval, DefaultCacheCleanupInterval.String())
	dp.SetDefault(cfgKeyWorkers, fetchpool.DefaultWorkers)
	dp.SetDefault(cfgKeyFetchTimeout, "0s")
	dp.SetDefault(cfgKeyRateLimitAlg, string(ratelimit.AlgTokenBucket))
	dp.SetDefault(cfgKeyRateLimitMaxKeys, ratelimit.DefaultMaxKeys)
	dp.SetDefault(cfgKeyRateLimitLongCap, ratelimit.DefaultLongWindow.Capacity)
	dp.SetDefault(cfgKeyRateLimitLongRefill, ratelimit.DefaultLongWindow.Refill.Count)
	dp.SetDefault(cfgKeyRateLimitLongPeriod, ratelimit.DefaultLongWindow.Refill.Duration.String())
	dp.SetDefault(cfgKeyRateLimitShortCap, ratelimit.DefaultShortWindow.Capacity)
	dp.SetDefault(cfgKeyRateLimitShortRefill, ratelimit.DefaultShortWindow.Refill.Count)
	dp.SetDefault(cfgKeyRateLimitShortPeriod, ratelimit.DefaultShortWindow.Refill.Duration.String())
}

// Set sets resolver configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.setCacheConfig(dp); err != nil {
		return err
	}

	var err error
	if c.Workers, err = dp.GetInt(cfgKeyWorkers); err != nil {
		return err
	}
	if c.Workers < 1 {
		return dp.WrapKeyErr(cfgKeyWorkers, fmt.Errorf("should be >= 1"))
	}

	var fetchTimeout time.Duration
	if fetchTimeout, err = dp.GetDuration(cfgKeyFetchTimeout); err != nil {
		return err
	}
	if fetchTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyFetchTimeout, fmt.Errorf("should be >= 0"))
	}
	c.FetchTimeout = config.TimeDuration(fetchTimeout)

	return c.setRateLimitConfig(dp)
}

func (c *Config) setCacheConfig(dp config.DataProvider) error {
	var err error

	if c.Cache.MaxEntries, err = dp.GetInt(cfgKeyCacheMaxEntries); err != nil {
		return err
	}
	if c.Cache.MaxEntries < 1 {
		return dp.WrapKeyErr(cfgKeyCacheMaxEntries, fmt.Errorf("should be >= 1"))
	}

	var ttl time.Duration
	if ttl, err = dp.GetDuration(cfgKeyCacheTTL); err != nil {
		return err
	}
	if ttl < 0 {
		return dp.WrapKeyErr(cfgKeyCacheTTL, fmt.Errorf("should be >= 0"))
	}
	c.Cache.TTL = config.TimeDuration(ttl)

	var cleanupInterval time.Duration
	if cleanupInterval, err = dp.GetDuration(cfgKeyCacheCleanupInterval); err != nil {
		return err
	}
	if cleanupInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheCleanupInterval, fmt.Errorf("should be > 0"))
	}
	c.Cache.CleanupInterval = config.TimeDuration(cleanupInterval)

	return nil
}

var availableAlgs = []string{
	string(ratelimit.AlgTokenBucket), string(ratelimit.AlgLeakyBucket), string(ratelimit.AlgSlidingWindow),
}

func (c *Config) setRateLimitConfig(dp config.DataProvider) error {
	var err error

	if c.RateLimit.Alg, err = dp.GetStringFromSet(cfgKeyRateLimitAlg, availableAlgs, true); err != nil {
		return err
	}
	c.RateLimit.Alg = strings.ToLower(c.RateLimit.Alg)

	if c.RateLimit.MaxKeys, err = dp.GetInt(cfgKeyRateLimitMaxKeys); err != nil {
		return err
	}
	if c.RateLimit.MaxKeys < 1 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxKeys, fmt.Errorf("should be >= 1"))
	}

	if c.RateLimit.Long, err = getWindowConfig(dp, cfgKeyRateLimitLongCap, cfgKeyRateLimitLongRefill, cfgKeyRateLimitLongPeriod); err != nil {
		return err
	}
	if c.RateLimit.Short, err = getWindowConfig(dp, cfgKeyRateLimitShortCap, cfgKeyRateLimitShortRefill, cfgKeyRateLimitShortPeriod); err != nil {
		return err
	}
	return nil
}

func getWindowConfig(dp config.DataProvider, capacityKey, refillKey, periodKey string) (WindowConfig, error) {
	var wc WindowConfig
	var err error

	if wc.Capacity, err = dp.GetInt(capacityKey); err != nil {
		return wc, err
	}
	if wc.Capacity < 1 {
		return wc, dp.WrapKeyErr(capacityKey, fmt.Errorf("should be >= 1"))
	}

	if wc.Refill, err = dp.GetInt(refillKey); err != nil {
		return wc, err
	}
	if wc.Refill < 1 {
		return wc, dp.WrapKeyErr(refillKey, fmt.Errorf("should be >= 1"))
	}

	var period time.Duration
	if period, err = dp.GetDuration(periodKey); err != nil {
		return wc, err
	}
	if period <= 0 {
		return wc, dp.WrapKeyErr(periodKey, fmt.Errorf("should be > 0"))
	}
	wc.Period = config.TimeDuration(period)

	return wc, nil
}

// LimiterParams returns the rate limiter parameters described by the configuration.
func (c *Config) LimiterParams() (ratelimit.Params, error) {
	alg, err := ratelimit.ParseAlg(c.RateLimit.Alg)
	if err != nil {
		return ratelimit.Params{}, err
	}
	return ratelimit.Params{
		Alg:     alg,
		Long:    c.RateLimit.Long.params(),
		Short:   c.RateLimit.Short.params(),
		MaxKeys: c.RateLimit.MaxKeys,
	}, nil
}

// NewLimiter creates a rate limiter described by the configuration.
func (c *Config) NewLimiter() (ratelimit.Limiter, error) {
	params, err := c.LimiterParams()
	if err != nil {
		return nil, err
	}
	return ratelimit.New(params)
}
