/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "io"

// Loader reads configuration data with a DataProvider and fills configuration objects.
// Defaults of all objects are registered before any of them is set,
// so a failed validation is always reported for a fully defaulted configuration.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader over viper that also reads environment variables with the given prefix.
// E.g. with the "RESOLVEKIT" prefix, "resolver.cache.ttl" may be set by RESOLVEKIT_RESOLVER_CACHE_TTL.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new Loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// LoadFromFile reads the file and fills the configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader reads the data and fills the configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(ScopedDataProvider(l.DataProvider, cfg))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(ScopedDataProvider(l.DataProvider, cfg)); err != nil {
			return err
		}
	}
	return nil
}
