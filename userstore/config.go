/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-resolvekit/config"
	"github.com/acronis/go-resolvekit/httpclient"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/retry"
)

const cfgDefaultKeyPrefix = "origin"

const (
	cfgKeyType             = "type"
	cfgKeyLatency          = "latency"
	cfgKeySeed             = "seed"
	cfgKeyBoltPath         = "bolt.path"
	cfgKeyBoltBucket       = "bolt.bucket"
	cfgKeyBoltOpenTimeout  = "bolt.openTimeout"
	cfgKeyRedisAddr        = "redis.addr"
	cfgKeyRedisPassword    = "redis.password"
	cfgKeyRedisDB          = "redis.db"
	cfgKeyRedisKeyPrefix   = "redis.keyPrefix"
	cfgKeyRedisDialTimeout = "redis.dialTimeout"
	cfgKeyHTTPBaseURL      = "http.baseURL"
	cfgKeyHTTPClient       = "http.client"
)

// Type defines possible origin store types.
type Type string

// Origin store types.
const (
	TypeMemory Type = "memory"
	TypeBolt   Type = "bolt"
	TypeRedis  Type = "redis"
	TypeHTTP   Type = "http"
)

// DefaultRedisDialTimeout is the default timeout for establishing connections to Redis.
const DefaultRedisDialTimeout = 5 * time.Second

// Config represents a set of configuration parameters for the origin store.
type Config struct {
	Type Type `mapstructure:"type" yaml:"type" json:"type"`

	// Latency is a simulated latency of the memory store.
	Latency config.TimeDuration `mapstructure:"latency" yaml:"latency" json:"latency"`

	// Seed determines whether an empty store is filled with DefaultUsers.
	Seed bool `mapstructure:"seed" yaml:"seed" json:"seed"`

	Bolt  BoltConfig  `mapstructure:"bolt" yaml:"bolt" json:"bolt"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
	HTTP  HTTPConfig  `mapstructure:"http" yaml:"http" json:"http"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// BoltConfig is a configuration for the bbolt-backed store.
type BoltConfig struct {
	Path        string              `mapstructure:"path" yaml:"path" json:"path"`
	Bucket      string              `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	OpenTimeout config.TimeDuration `mapstructure:"openTimeout" yaml:"openTimeout" json:"openTimeout"`
}

// RedisConfig is a configuration for the Redis-backed store.
type RedisConfig struct {
	Addr        string              `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password    string              `mapstructure:"password" yaml:"password" json:"password"`
	DB          int                 `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix   string              `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	DialTimeout config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
}

// HTTPConfig is a configuration for the store backed by a remote users API.
type HTTPConfig struct {
	BaseURL string             `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	Client  *httpclient.Config `mapstructure:"client" yaml:"client" json:"client"`
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix, HTTP: HTTPConfig{Client: httpclient.NewConfig()}}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Type:      TypeMemory,
		Latency:   config.TimeDuration(DefaultLatency),
		Seed:      true,
		Bolt: BoltConfig{
			Bucket:      DefaultBoltBucket,
			OpenTimeout: config.TimeDuration(DefaultBoltOpenTimeout),
		},
		Redis: RedisConfig{
			KeyPrefix:   DefaultRedisKeyPrefix,
			DialTimeout: config.TimeDuration(DefaultRedisDialTimeout),
		},
		HTTP: HTTPConfig{Client: httpclient.NewDefaultConfig()},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the origin store in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyType, string(TypeMemory))
	dp.SetDefault(cfgKeyLatency, DefaultLatency.String())
	dp.SetDefault(cfgKeySeed, true)
	dp.SetDefault(cfgKeyBoltBucket, DefaultBoltBucket)
	dp.SetDefault(cfgKeyBoltOpenTimeout, DefaultBoltOpenTimeout.String())
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultRedisKeyPrefix)
	dp.SetDefault(cfgKeyRedisDialTimeout, DefaultRedisDialTimeout.String())
	c.httpClientConfig().SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyHTTPClient))
}

var availableTypes = []string{string(TypeMemory), string(TypeBolt), string(TypeRedis), string(TypeHTTP)}

// Set sets origin store configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var typeStr string
	if typeStr, err = dp.GetStringFromSet(cfgKeyType, availableTypes, true); err != nil {
		return err
	}
	c.Type = Type(strings.ToLower(typeStr))

	var latency time.Duration
	if latency, err = dp.GetDuration(cfgKeyLatency); err != nil {
		return err
	}
	if latency < 0 {
		return dp.WrapKeyErr(cfgKeyLatency, fmt.Errorf("should be >= 0"))
	}
	c.Latency = config.TimeDuration(latency)

	if c.Seed, err = dp.GetBool(cfgKeySeed); err != nil {
		return err
	}

	if err = c.setBoltConfig(dp); err != nil {
		return err
	}
	if err = c.setRedisConfig(dp); err != nil {
		return err
	}
	return c.setHTTPConfig(dp)
}

func (c *Config) setBoltConfig(dp config.DataProvider) error {
	var err error
	if c.Bolt.Path, err = dp.GetString(cfgKeyBoltPath); err != nil {
		return err
	}
	if c.Bolt.Path == "" && c.Type == TypeBolt {
		return dp.WrapKeyErr(cfgKeyBoltPath, fmt.Errorf("cannot be empty when %q type is used", TypeBolt))
	}
	if c.Bolt.Bucket, err = dp.GetString(cfgKeyBoltBucket); err != nil {
		return err
	}
	var openTimeout time.Duration
	if openTimeout, err = dp.GetDuration(cfgKeyBoltOpenTimeout); err != nil {
		return err
	}
	if openTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyBoltOpenTimeout, fmt.Errorf("should be > 0"))
	}
	c.Bolt.OpenTimeout = config.TimeDuration(openTimeout)
	return nil
}

func (c *Config) setRedisConfig(dp config.DataProvider) error {
	var err error
	if c.Redis.Addr, err = dp.GetString(cfgKeyRedisAddr); err != nil {
		return err
	}
	if c.Redis.Addr == "" && c.Type == TypeRedis {
		return dp.WrapKeyErr(cfgKeyRedisAddr, fmt.Errorf("cannot be empty when %q type is used", TypeRedis))
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return dp.WrapKeyErr(cfgKeyRedisDB, fmt.Errorf("should be >= 0"))
	}
	if c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix); err != nil {
		return err
	}
	var dialTimeout time.Duration
	if dialTimeout, err = dp.GetDuration(cfgKeyRedisDialTimeout); err != nil {
		return err
	}
	if dialTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyRedisDialTimeout, fmt.Errorf("should be > 0"))
	}
	c.Redis.DialTimeout = config.TimeDuration(dialTimeout)
	return nil
}

func (c *Config) setHTTPConfig(dp config.DataProvider) error {
	var err error
	if c.HTTP.BaseURL, err = dp.GetString(cfgKeyHTTPBaseURL); err != nil {
		return err
	}
	if c.HTTP.BaseURL == "" && c.Type == TypeHTTP {
		return dp.WrapKeyErr(cfgKeyHTTPBaseURL, fmt.Errorf("cannot be empty when %q type is used", TypeHTTP))
	}
	if c.HTTP.BaseURL != "" {
		if u, parseErr := url.Parse(c.HTTP.BaseURL); parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return dp.WrapKeyErr(cfgKeyHTTPBaseURL, fmt.Errorf("should be an absolute http(s) URL"))
		}
	}
	return c.httpClientConfig().Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyHTTPClient))
}

func (c *Config) httpClientConfig() *httpclient.Config {
	if c.HTTP.Client == nil {
		c.HTTP.Client = httpclient.NewConfig()
	}
	return c.HTTP.Client
}

// OpenOpts represents options for Open.
type OpenOpts struct {
	Logger log.FieldLogger

	// HTTPClientMetrics collects metrics of requests to the remote origin ("http" type). May be nil.
	HTTPClientMetrics *httpclient.PrometheusMetrics
}

// Open opens the origin store described by the configuration.
func Open(ctx context.Context, cfg *Config, opts OpenOpts) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	var seed []User
	if cfg.Seed {
		seed = DefaultUsers()
	}

	switch cfg.Type {
	case TypeMemory, "":
		if seed == nil {
			seed = []User{}
		}
		return NewMemoryStore(MemoryStoreOpts{Latency: time.Duration(cfg.Latency), Seed: seed}), nil

	case TypeBolt:
		return OpenBoltStore(ctx, cfg.Bolt.Path, BoltStoreOpts{
			Bucket:      cfg.Bolt.Bucket,
			OpenTimeout: time.Duration(cfg.Bolt.OpenTimeout),
			Seed:        seed,
			Logger:      logger,
		})

	case TypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout),
		})
		store := NewRedisStore(client, cfg.Redis.KeyPrefix)
		notify := func(err error, d time.Duration) {
			logger.Warn("redis is not reachable, retrying", log.String("addr", cfg.Redis.Addr), log.Error(err),
				log.Duration("delay", d))
		}
		if err := retry.DoWithRetry(ctx, retry.NewExponentialBackoffPolicy(200*time.Millisecond, 5), nil, notify,
			store.Ping); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		if err := store.Seed(ctx, seed); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	case TypeHTTP:
		store, err := OpenHTTPStore(&cfg.HTTP, HTTPStoreOpts{Logger: logger}, opts.HTTPClientMetrics)
		if err != nil {
			return nil, err
		}
		if cfg.Seed {
			logger.Info("seeding is not supported by the remote origin, skipped", log.String("base_url", cfg.HTTP.BaseURL))
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown origin store type %q", cfg.Type)
	}
}
