package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 700*time.Millisecond, cfg.Control.DefaultFade.Std())
	assert.Equal(t, 3, cfg.Control.IndicateCount)
	assert.Equal(t, time.Second, cfg.Control.IndicatePeriod.Std())
	assert.Equal(t, 3, cfg.Connection.MaxConnectionFails)
	assert.Equal(t, 60*time.Second, cfg.Connection.BadConnectionRetest.Std())

	mask, err := cfg.GroupMaskAddress()
	require.NoError(t, err)
	assert.Nil(t, mask, "no mask means all devices")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
serial: /dev/ttyACM0
credential_file: /var/lib/gw/creds.conf
group_mask: "255.255.255.12"
control:
  default_fade: 1s
connection:
  connect_timeout: 20s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial)
	assert.Equal(t, "/var/lib/gw/creds.conf", cfg.CredentialFile)
	assert.Equal(t, time.Second, cfg.Control.DefaultFade.Std())
	assert.Equal(t, 20*time.Second, cfg.Connection.ConnectTimeout.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Connection.StepTimeout.Std())
	assert.Equal(t, 3, cfg.Control.IndicateCount)

	mask, err := cfg.GroupMaskAddress()
	require.NoError(t, err)
	assert.True(t, frame.LogicalAddress{255, 255, 255, 12}.Equal(mask))
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", "control:\n  default_fade: fast\n"},
		{"bad mask", "group_mask: \"1.2\"\n"},
		{"intensity range", "control:\n  indicate_intensity: 250\n"},
		{"empty credential file", "credential_file: \"\"\n"},
		{"not yaml", "{{{{\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
