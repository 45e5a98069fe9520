/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-resolvekit/config"
)

func loadConfig(t *testing.T, data string, cfg *Config) error {
	t.Helper()
	return config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
}

func TestConfig_Load(t *testing.T) {
	const data = `
log:
  level: WARN
  format: text
  output: file
  nocolor: true
  addCaller: true
  file:
    path: /var/log/resolverd-{{pid}}.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 3
      maxAgeDays: 7
  error:
    noVerbose: true
`
	want := NewDefaultConfig()
	want.Level = LevelWarn
	want.Format = FormatText
	want.Output = OutputFile
	want.NoColor = true
	want.AddCaller = true
	want.File = FileOutputConfig{
		Path: "/var/log/resolverd-{{pid}}.log",
		Rotation: FileRotationConfig{
			Compress: true, MaxSize: 100 * 1024 * 1024, MaxBackups: 3, MaxAgeDays: 7,
		},
	}
	want.Error.NoVerbose = true

	cfg := NewConfig()
	require.NoError(t, loadConfig(t, data, cfg))
	require.Equal(t, want, cfg)

	// The same document decoded directly must give the same values.
	var doc struct {
		Log *Config `yaml:"log"`
	}
	doc.Log = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(data), &doc))
	doc.Log.Level = LevelWarn // yaml.Unmarshal keeps the original case
	require.Equal(t, want, doc.Log)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, loadConfig(t, "", cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfig_KeyPrefix(t *testing.T) {
	cfg := NewConfig(WithKeyPrefix("resolverd.log"))
	require.NoError(t, loadConfig(t, "resolverd:\n  log:\n    level: debug\n", cfg))
	require.Equal(t, LevelDebug, cfg.Level)
	require.Equal(t, "resolverd.log", cfg.KeyPrefix())

	require.Equal(t, "log", (&Config{}).KeyPrefix())
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "unknown level",
			data:    "log:\n  level: trace",
			wantErr: `log.level: unknown value "trace", should be one of [error warn info debug]`,
		},
		{
			name:    "unknown format",
			data:    "log:\n  format: xml",
			wantErr: `log.format: unknown value "xml", should be one of [json text]`,
		},
		{
			name:    "unknown output",
			data:    "log:\n  output: syslog",
			wantErr: `log.output: unknown value "syslog", should be one of [stdout stderr file]`,
		},
		{
			name:    "file output without path",
			data:    "log:\n  output: file",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:    "too small rotation size",
			data:    "log:\n  file:\n    rotation:\n      maxSize: 512K",
			wantErr: `log.file.rotation.maxSize: should be >= 1M`,
		},
		{
			name:    "no backups",
			data:    "log:\n  file:\n    rotation:\n      maxBackups: 0",
			wantErr: `log.file.rotation.maxBackups: should be >= 1`,
		},
		{
			name:    "negative max age",
			data:    "log:\n  file:\n    rotation:\n      maxAgeDays: -1",
			wantErr: `log.file.rotation.maxAgeDays: should be >= 0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, loadConfig(t, tt.data, NewConfig()), tt.wantErr)
		})
	}
}
