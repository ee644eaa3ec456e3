package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[network]
tick_rate = "300ms"

[scripts]
normal_retry_ticks = 3

[database]
driver = "none"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.Network.TickRate)
	assert.Equal(t, 3, cfg.Scripts.NormalRetryTicks)
	assert.Equal(t, "none", cfg.Database.Driver)
	// untouched sections keep their defaults
	assert.Equal(t, uint64(20), cfg.Interaction.GatherTimeoutTicks)
	assert.Equal(t, 2, cfg.Movement.RunTilesPerTick)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "[database]\ndriver = \"mysql\"\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "[movement]\nwalk_tiles_per_tick = 2\nrun_tiles_per_tick = 1\n"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
