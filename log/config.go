/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"github.com/acronis/go-resolvekit/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel            = "level"
	cfgKeyFormat           = "format"
	cfgKeyOutput           = "output"
	cfgKeyNoColor          = "nocolor"
	cfgKeyAddCaller        = "addCaller"
	cfgKeyFilePath         = "file.path"
	cfgKeyRotationCompress = "file.rotation.compress"
	cfgKeyRotationMaxSize  = "file.rotation.maxSize"
	cfgKeyRotationBackups  = "file.rotation.maxBackups"
	cfgKeyRotationMaxAge   = "file.rotation.maxAgeDays"
	cfgKeyRotationLocal    = "file.rotation.localTimeInNames"
	cfgKeyErrNoVerbose     = "error.noVerbose"
	cfgKeyErrVerboseSuffix = "error.verboseSuffix"
)

// Defaults and limits of the log file rotation.
const (
	DefaultFileRotationMaxSizeBytes = 250 * 1024 * 1024
	MinFileRotationMaxSizeBytes     = 1024 * 1024

	DefaultFileRotationMaxBackups = 10
	MinFileRotationMaxBackups     = 1
)

const defaultErrorVerboseSuffix = "_verbose"

// Level is a logging level.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an encoding of log entries.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is where log entries are written.
type Output string

const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

var (
	availableLevels  = []Level{LevelError, LevelWarn, LevelInfo, LevelDebug}
	availableFormats = []Format{FormatJSON, FormatText}
	availableOutputs = []Output{OutputStdout, OutputStderr, OutputFile}
)

// Config is the logging configuration.
// Besides config.Loader, it may be decoded with viper, yaml.Unmarshal or json.Unmarshal.
type Config struct {
	Level   Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format  Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output  Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`
	Error   ErrorConfig      `mapstructure:"error" yaml:"error" json:"error"`

	// AddCaller adds the "caller" field (package/file:line) to every entry.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`

	keyPrefix string
}

// FileOutputConfig configures the "file" output.
// The path may contain {{starttime}} and {{pid}} placeholders.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig configures rotation of the log file.
type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig controls how error fields are encoded.
// Unless NoVerbose is set, an error implementing fmt.Formatter whose "%+v" output differs from Error()
// gets an additional field named "error"+VerboseSuffix.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption customizes a Config.
type ConfigOption func(*Config)

// WithKeyPrefix sets the key prefix the configuration is read under ("log" by default).
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

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Level = LevelInfo
	cfg.Format = FormatJSON
	cfg.Output = OutputStdout
	cfg.File.Rotation.MaxSize = DefaultFileRotationMaxSizeBytes
	cfg.File.Rotation.MaxBackups = DefaultFileRotationMaxBackups
	cfg.Error.VerboseSuffix = defaultErrorVerboseSuffix
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
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))
	dp.SetDefault(cfgKeyRotationMaxSize, config.ByteSize(DefaultFileRotationMaxSizeBytes).String())
	dp.SetDefault(cfgKeyRotationBackups, DefaultFileRotationMaxBackups)
	dp.SetDefault(cfgKeyErrVerboseSuffix, defaultErrorVerboseSuffix)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Level, err = getOneOf(dp, cfgKeyLevel, availableLevels); err != nil {
		return err
	}
	if c.Format, err = getOneOf(dp, cfgKeyFormat, availableFormats); err != nil {
		return err
	}
	if c.Output, err = getOneOf(dp, cfgKeyOutput, availableOutputs); err != nil {
		return err
	}
	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	if err = c.setFile(dp); err != nil {
		return err
	}
	if c.Error.NoVerbose, err = dp.GetBool(cfgKeyErrNoVerbose); err != nil {
		return err
	}
	c.Error.VerboseSuffix, err = dp.GetString(cfgKeyErrVerboseSuffix)
	return err
}

func (c *Config) setFile(dp config.DataProvider) (err error) {
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	rotation := &c.File.Rotation
	if rotation.Compress, err = dp.GetBool(cfgKeyRotationCompress); err != nil {
		return err
	}
	if rotation.LocalTimeInNames, err = dp.GetBool(cfgKeyRotationLocal); err != nil {
		return err
	}
	if rotation.MaxSize, err = dp.GetByteSize(cfgKeyRotationMaxSize); err != nil {
		return err
	}
	if rotation.MaxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyRotationMaxSize,
			fmt.Errorf("should be >= %s", config.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	if rotation.MaxBackups, err = dp.GetInt(cfgKeyRotationBackups); err != nil {
		return err
	}
	if rotation.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(cfgKeyRotationBackups, fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}
	if rotation.MaxAgeDays, err = dp.GetInt(cfgKeyRotationMaxAge); err != nil {
		return err
	}
	if rotation.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyRotationMaxAge, fmt.Errorf("should be >= 0"))
	}
	return nil
}

// getOneOf reads a case-insensitive enum value and returns it lowercased.
func getOneOf[T ~string](dp config.DataProvider, key string, values []T) (T, error) {
	set := make([]string, len(values))
	for i, v := range values {
		set[i] = string(v)
	}
	s, err := dp.GetStringFromSet(key, set, true)
	if err != nil {
		return "", err
	}
	return T(strings.ToLower(s)), nil
}
