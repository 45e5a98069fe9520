/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes for configuration structures.
// It's decoded from non-negative integers or human-readable strings ("250M", "1GB", "512Ki")
// and encoded as a human-readable string.
type ByteSize uint64

func parseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if num, err := strconv.ParseInt(v, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	}
	// Kubernetes-style suffixes: bytefmt treats "K" as 1024 already.
	if len(v) > 2 && strings.HasSuffix(v, "i") && strings.ContainsRune("KMGTPE", rune(v[len(v)-2])) {
		v = v[:len(v)-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := toByteSizeE(raw)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	v, err := toByteSizeE(raw)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler (used by mapstructure hooks).
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := parseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// TimeDuration is a time.Duration for configuration structures.
// It's decoded from Go duration strings ("1m30s") or non-negative integers (nanoseconds)
// and encoded as a Go duration string.
type TimeDuration time.Duration

func toTimeDuration(val interface{}) (TimeDuration, error) {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if num, err := strconv.ParseInt(s, 10, 64); err == nil {
			return toTimeDuration(num)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid time duration format (%s): %w", v, err)
		}
		return TimeDuration(d), nil
	case int:
		return toTimeDuration(int64(v))
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", v)
		}
		return TimeDuration(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("invalid time duration format: %v", v)
		}
		return toTimeDuration(int64(v))
	default:
		return 0, fmt.Errorf("invalid time duration format: %v", val)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := toTimeDuration(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	v, err := toTimeDuration(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler (used by mapstructure hooks).
func (d *TimeDuration) UnmarshalText(text []byte) error {
	v, err := toTimeDuration(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML implements yaml.Marshaler.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
