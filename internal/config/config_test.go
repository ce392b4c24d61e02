package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfigWhenAbsent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:7777", cfg.RelayURL)
	require.Equal(t, 60, cfg.TickIntervalSeconds)

	_, err = os.Stat(ConfigPath(dir))
	require.NoError(t, err, "Load must persist a default config file")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.RelayURL = "ws://relay.example:7777"
	cfg.TickIntervalSeconds = 30

	require.NoError(t, cfg.Save(ConfigPath(dir)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ws://relay.example:7777", loaded.RelayURL)
	require.Equal(t, 30, loaded.TickIntervalSeconds)
}

func TestTickIntervalConvertsSecondsToDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickIntervalSeconds = 45
	require.Equal(t, 45e9, float64(cfg.TickInterval()))
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(ConfigPath(dir)))

	envContent := "ZAP_RELAY_URL=ws://override:9999\nZAP_TICK_INTERVAL_SECONDS=15\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(envContent), 0644))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ws://override:9999", loaded.RelayURL)
	require.Equal(t, 15, loaded.TickIntervalSeconds)
}
