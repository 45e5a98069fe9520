/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-resolvekit/config"
)

func loadServerConfig(t *testing.T, data string, dataType config.DataType, cfg *Config) error {
	t.Helper()
	return config.NewLoader(config.NewViperAdapter()).LoadFromReader(strings.NewReader(data), dataType, cfg)
}

func TestConfig_Load(t *testing.T) {
	want := NewDefaultConfig()
	want.Address = "127.0.0.1:3001"
	want.Timeouts.Write = config.TimeDuration(time.Hour)
	want.Timeouts.Read = config.TimeDuration(7 * time.Minute)
	want.Timeouts.Shutdown = config.TimeDuration(30 * time.Second)
	want.Limits.MaxBodySizeBytes = 64 * 1024
	want.Log.RequestStart = true
	want.Log.RequestHeaders = []string{"X-Forwarded-For"}
	want.Log.ExcludedEndpoints = []string{"/healthz", "/metrics"}
	want.Log.SlowRequestThreshold = config.TimeDuration(2 * time.Second)

	tests := []struct {
		name     string
		dataType config.DataType
		data     string
	}{
		{
			name:     "yaml",
			dataType: config.DataTypeYAML,
			data: `
server:
  address: "127.0.0.1:3001"
  timeouts:
    write: 1h
    read: 7m
    shutdown: 30s
  limits:
    maxBodySize: 64K
  log:
    requestStart: true
    requestHeaders: [X-Forwarded-For]
    excludedEndpoints: [/healthz, /metrics]
    slowRequestThreshold: 2s
`,
		},
		{
			name:     "json",
			dataType: config.DataTypeJSON,
			data: `{"server": {
  "address": "127.0.0.1:3001",
  "timeouts": {"write": "1h", "read": "7m", "shutdown": "30s"},
  "limits": {"maxBodySize": "64K"},
  "log": {
    "requestStart": true,
    "requestHeaders": ["X-Forwarded-For"],
    "excludedEndpoints": ["/healthz", "/metrics"],
    "slowRequestThreshold": "2s"
  }
}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name+" via loader", func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, loadServerConfig(t, tt.data, tt.dataType, cfg))
			require.Equal(t, want, cfg)
		})
		t.Run(tt.name+" via unmarshal", func(t *testing.T) {
			var wrapper struct {
				Server *Config `yaml:"server" json:"server"`
			}
			wrapper.Server = NewDefaultConfig()
			if tt.dataType == config.DataTypeYAML {
				require.NoError(t, yaml.Unmarshal([]byte(tt.data), &wrapper))
			} else {
				require.NoError(t, json.Unmarshal([]byte(tt.data), &wrapper))
			}
			require.Equal(t, want, wrapper.Server)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, loadServerConfig(t, "", config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, DefaultAddress, cfg.Address)
	require.Equal(t, config.ByteSize(DefaultMaxBodySize), cfg.Limits.MaxBodySizeBytes)
}

func TestConfig_KeyPrefix(t *testing.T) {
	cfg := NewConfig(WithKeyPrefix("api"))
	require.Equal(t, "api", cfg.KeyPrefix())
	require.NoError(t, loadServerConfig(t, "api:\n  address: 127.0.0.1:9999\n", config.DataTypeYAML, cfg))
	require.Equal(t, "127.0.0.1:9999", cfg.Address)

	require.Equal(t, "server", (&Config{}).KeyPrefix())
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "empty address", data: "server:\n  address: \"\"\n", wantErr: "server.address: cannot be empty"},
		{name: "negative timeout", data: "server:\n  timeouts:\n    idle: -1s\n", wantErr: "server.timeouts.idle: should be >= 0"},
		{name: "negative slow threshold", data: "server:\n  log:\n    slowRequestThreshold: -5s\n",
			wantErr: "server.log.slowRequestThreshold: should be >= 0"},
		{name: "bad timeout", data: "server:\n  timeouts:\n    read: soon\n", wantErr: "server.timeouts.read"},
		{name: "bad body size", data: "server:\n  limits:\n    maxBodySize: lots\n", wantErr: "server.limits.maxBodySize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorContains(t, loadServerConfig(t, tt.data, config.DataTypeYAML, NewConfig()), tt.wantErr)
		})
	}
}
