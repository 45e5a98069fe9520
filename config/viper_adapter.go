/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by spf13/viper. Values are converted with spf13/cast.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper: viper.New()}
}

// UseEnvVars makes environment variables override values from files.
// The variable name is the upper-cased key with dots replaced by underscores and the "<prefix>_" prefix.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

// Set overrides the value of the key.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the value used when the key is present neither in the data nor in the environment.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// IsSet reports whether the key has a value (keys are case-insensitive).
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get returns the raw value of the key.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

func getAs[T any](va *ViperAdapter, key string, convert func(interface{}) (T, error)) (T, error) {
	res, err := convert(va.viper.Get(key))
	if err != nil {
		var zero T
		return zero, WrapKeyErr(key, err)
	}
	return res, nil
}

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return getAs(va, key, cast.ToBoolE)
}

// GetInt returns the value of the key as an int.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return getAs(va, key, cast.ToIntE)
}

// GetFloat64 returns the value of the key as a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return getAs(va, key, cast.ToFloat64E)
}

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return getAs(va, key, cast.ToStringE)
}

// GetStringFromSet returns the value of the key if it's one of the set values.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice returns the value of the key as a slice of strings. A missing key gives a nil slice.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	if va.viper.Get(key) == nil {
		return nil, nil
	}
	return getAs(va, key, cast.ToStringSliceE)
}

// GetDuration returns the value of the key as a time.Duration.
// Both Go duration strings ("1m30s") and integers (nanoseconds) are accepted. A missing key gives 0.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	if va.viper.Get(key) == nil {
		return 0, nil
	}
	return getAs(va, key, cast.ToDurationE)
}

// GetByteSize returns the value of the key as a ByteSize.
// Both human-readable strings ("10M", "512Ki") and non-negative numbers are accepted. A missing key gives 0.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	return getAs(va, key, toByteSizeE)
}

func toByteSizeE(val interface{}) (ByteSize, error) {
	switch v := val.(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case string:
		return parseByteSize(v)
	case uint, uint8, uint16, uint32, uint64:
		return ByteSize(cast.ToUint64(v)), nil
	case int, int8, int16, int32, int64:
		num := cast.ToInt64(v)
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	case float32, float64:
		num := cast.ToFloat64(v)
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %v", num)
		}
		return ByteSize(num), nil
	default:
		return 0, fmt.Errorf("unsupported type for byte size: %T", val)
	}
}

// UnmarshalKey decodes the value of the key into rawVal with mapstructure.
// Besides viper's default hooks, types implementing encoding.TextUnmarshaler
// (e.g. TimeDuration and ByteSize) are decoded from strings.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	viperOpts := make([]viper.DecoderConfigOption, 0, len(opts)+1)
	viperOpts = append(viperOpts, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	for _, opt := range opts {
		viperOpts = append(viperOpts, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, viperOpts...))
}

// WrapKeyErr adds the key to the error message.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
