/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the service components from YAML/JSON files and environment variables.
//
// Every component describes its parameters with a type implementing Config: SetProviderDefaults registers
// default values, Set reads and validates the values. Components that implement KeyPrefixProvider
// see only the keys under their prefix (e.g. "resolver.cache.ttl" is "cache.ttl" for the resolver).
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// ScopedDataProvider returns a data provider that resolves keys relative to the key prefix of cfg.
// The passed provider is returned as is if cfg has no prefix.
func ScopedDataProvider(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
