package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, int64(2147483648), cfg.GuestLimit)
	assert.Equal(t, "guest-", cfg.GuestPrefix)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.True(t, cfg.CloseSuperseded)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nguest_limit: 500MB\nsend_buffer: 8\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SHARE_GUEST_PREFIX", "anon-")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	require.NoError(t, flags.Parse([]string{"--port=9100"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, int64(500_000_000), cfg.GuestLimit)
	assert.Equal(t, "anon-", cfg.GuestPrefix)
	assert.Equal(t, 8, cfg.SendBuffer)
}

func TestLoadRejectsBadLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guest_limit: lots\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load(nil)
	assert.ErrorContains(t, err, "guest_limit")
}

func TestLoadRejectsOutOfRangeLimit(t *testing.T) {
	for _, raw := range []string{"0", "0B", "10EiB", "18446744073709551615"} {
		t.Run(raw, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte("guest_limit: \""+raw+"\"\n"), 0o600))
			t.Setenv("CONFIG_FILE", path)

			_, err := Load(nil)
			assert.ErrorContains(t, err, "guest_limit")
		})
	}
}
