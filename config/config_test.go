package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "melvin.conf")

	cfg := Default()
	cfg.Devices.ScanDirs = []string{"/dev", "/dev/mapper"}
	cfg.Allocation.DefaultExtentSizeSectors = 16384
	cfg.Log.Level = "debug"

	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, cfg.Devices.ScanDirs, got.Devices.ScanDirs)
	require.Equal(t, cfg.Allocation.DefaultExtentSizeSectors, got.Allocation.DefaultExtentSizeSectors)
	require.Equal(t, cfg.Log.Level, got.Log.Level)
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, []string{"/dev"}, cfg.Devices.ScanDirs)
	require.Equal(t, int64(8192), cfg.Allocation.DefaultExtentSizeSectors)
}
