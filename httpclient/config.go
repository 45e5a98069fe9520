/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-resolvekit/config"
	"github.com/acronis/go-resolvekit/retry"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyTimeout                      = "timeout"
	cfgKeyRetriesEnabled               = "retries.enabled"
	cfgKeyRetriesMaxAttempts           = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy        = "retries.policy.strategy"
	cfgKeyRetriesPolicyInitialInterval = "retries.policy.initialInterval"
	cfgKeyRetriesPolicyMultiplier      = "retries.policy.multiplier"
	cfgKeyRetriesPolicyInterval        = "retries.policy.interval"
	cfgKeyRateLimitsEnabled            = "rateLimits.enabled"
	cfgKeyRateLimitsLimit              = "rateLimits.limit"
	cfgKeyRateLimitsBurst              = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout        = "rateLimits.waitTimeout"
	cfgKeyLogMode                      = "log.mode"
	cfgKeyLogSlowRequestThreshold      = "log.slowRequestThreshold"
)

// RetryPolicy defines possible backoff strategies between retry attempts.
type RetryPolicy string

// Retry policies.
const (
	RetryPolicyExponential RetryPolicy = "exponential"
	RetryPolicyConstant    RetryPolicy = "constant"
)

// Default values.
const (
	DefaultTimeout                    = 10 * time.Second
	DefaultMaxRetryAttempts           = 3
	DefaultRetryInitialInterval       = 100 * time.Millisecond
	DefaultRetryMultiplier            = 2.0
	DefaultSlowRequestThreshold       = time.Second
	DefaultRateLimitingBurst          = 1
	DefaultRateLimitingWaitTimeout    = 15 * time.Second
	defaultRetryPolicyMaxElapsedTime  = 0
	defaultRetryPolicyRandomizeFactor = backoff.DefaultRandomizationFactor
)

// Config represents a set of configuration parameters for HTTP clients.
type Config struct {
	// Timeout limits the whole request including retries. Zero means no timeout.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	Retries    RetriesConfig    `mapstructure:"retries" yaml:"retries" json:"retries"`
	RateLimits RateLimitsConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RetriesConfig is a configuration for retrying of failed requests.
type RetriesConfig struct {
	Enabled     bool              `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts int               `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Policy      RetryPolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// RetryPolicyConfig is a configuration for the backoff between retry attempts.
type RetryPolicyConfig struct {
	Strategy RetryPolicy `mapstructure:"strategy" yaml:"strategy" json:"strategy"`

	// InitialInterval and Multiplier are used by the exponential strategy.
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`
	Multiplier      float64             `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`

	// Interval is used by the constant strategy.
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// RateLimitsConfig is a configuration for client-side rate limiting of outgoing requests.
type RateLimitsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the number of requests per second.
	Limit       int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst       int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// LogConfig is a configuration for logging of outgoing requests.
type LogConfig struct {
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
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
	cfg.Timeout = config.TimeDuration(DefaultTimeout)
	cfg.Retries = RetriesConfig{
		Enabled:     true,
		MaxAttempts: DefaultMaxRetryAttempts,
		Policy: RetryPolicyConfig{
			Strategy:        RetryPolicyExponential,
			InitialInterval: config.TimeDuration(DefaultRetryInitialInterval),
			Multiplier:      DefaultRetryMultiplier,
			Interval:        config.TimeDuration(DefaultRetryInitialInterval),
		},
	}
	cfg.RateLimits = RateLimitsConfig{
		Burst:       DefaultRateLimitingBurst,
		WaitTimeout: config.TimeDuration(DefaultRateLimitingWaitTimeout),
	}
	cfg.Log = LogConfig{
		Mode:                 LoggingModeFailed,
		SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTP client in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, string(RetryPolicyExponential))
	dp.SetDefault(cfgKeyRetriesPolicyInitialInterval, DefaultRetryInitialInterval.String())
	dp.SetDefault(cfgKeyRetriesPolicyMultiplier, DefaultRetryMultiplier)
	dp.SetDefault(cfgKeyRetriesPolicyInterval, DefaultRetryInitialInterval.String())
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout.String())
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold.String())
}

// Set sets HTTP client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should be >= 0"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.setRetriesConfig(dp); err != nil {
		return err
	}
	if err = c.setRateLimitsConfig(dp); err != nil {
		return err
	}
	return c.setLogConfig(dp)
}

var availableRetryPolicies = []string{string(RetryPolicyExponential), string(RetryPolicyConstant)}

func (c *Config) setRetriesConfig(dp config.DataProvider) error {
	var err error
	if c.Retries.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if c.Retries.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.Retries.Enabled && c.Retries.MaxAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("should be >= 1 when retries are enabled"))
	}

	var strategy string
	if strategy, err = dp.GetStringFromSet(cfgKeyRetriesPolicyStrategy, availableRetryPolicies, true); err != nil {
		return err
	}
	c.Retries.Policy.Strategy = RetryPolicy(strings.ToLower(strategy))

	var initialInterval, interval time.Duration
	if initialInterval, err = dp.GetDuration(cfgKeyRetriesPolicyInitialInterval); err != nil {
		return err
	}
	if initialInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyInitialInterval, fmt.Errorf("should be > 0"))
	}
	c.Retries.Policy.InitialInterval = config.TimeDuration(initialInterval)

	if c.Retries.Policy.Multiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyMultiplier); err != nil {
		return err
	}
	if c.Retries.Policy.Multiplier < 1 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyMultiplier, fmt.Errorf("should be >= 1"))
	}

	if interval, err = dp.GetDuration(cfgKeyRetriesPolicyInterval); err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyInterval, fmt.Errorf("should be > 0"))
	}
	c.Retries.Policy.Interval = config.TimeDuration(interval)
	return nil
}

func (c *Config) setRateLimitsConfig(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Enabled && c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("should be > 0 when rate limiting is enabled"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("should be >= 0"))
	}
	var waitTimeout time.Duration
	if waitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("should be >= 0"))
	}
	c.RateLimits.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

func (c *Config) setLogConfig(dp config.DataProvider) error {
	mode, err := dp.GetStringFromSet(cfgKeyLogMode, availableLoggingModes, true)
	if err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(strings.ToLower(mode))

	var threshold time.Duration
	if threshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("should be >= 0"))
	}
	c.Log.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

// BackoffPolicy returns a retry.Policy that computes delays between retry attempts.
// The number of attempts is limited by RetryableRoundTripper, not by the policy.
func (c *RetryPolicyConfig) BackoffPolicy() retry.Policy {
	if c.Strategy == RetryPolicyConstant {
		interval := time.Duration(c.Interval)
		return retry.PolicyFunc(func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		})
	}
	initialInterval, multiplier := time.Duration(c.InitialInterval), c.Multiplier
	return retry.PolicyFunc(func() backoff.BackOff {
		bf := backoff.NewExponentialBackOff()
		bf.InitialInterval = initialInterval
		bf.Multiplier = multiplier
		bf.RandomizationFactor = defaultRetryPolicyRandomizeFactor
		bf.MaxElapsedTime = defaultRetryPolicyMaxElapsedTime
		bf.Reset()
		return bf
	})
}
