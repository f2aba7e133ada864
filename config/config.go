// Package config loads and saves melvin's system configuration file: a
// small textfmt document (the same grammar as on-disk VG metadata, per
// spec.md §4.2) bound to a Go struct via mapstructure, the way the
// teacher binds parsed property strings onto Go structs in
// lxc/utils_properties.go.
package config

import (
	"fmt"
	"os"

	"github.com/agrover/melvin/textfmt"
)

// Config is melvin's system configuration: where to look for candidate PV
// devices, the default extent size new VGs are created with, and the log
// level mlog.Default should be set to (scan is the current mlog caller;
// other packages return errors for the caller to log instead).
type Config struct {
	Devices struct {
		ScanDirs []string `lvm:"scan_dirs"`
	} `lvm:"devices"`

	Allocation struct {
		DefaultExtentSizeSectors int64 `lvm:"default_extent_size"`
	} `lvm:"allocation"`

	Log struct {
		Level string `lvm:"level"`
	} `lvm:"log"`
}

// Default returns the configuration melvin assumes when no configuration
// file is present: scan /dev, 8192-sector (4 MiB) extents per spec.md
// §4.6's vg_create default, "info" logging.
func Default() *Config {
	cfg := &Config{}
	cfg.Devices.ScanDirs = []string{"/dev"}
	cfg.Allocation.DefaultExtentSizeSectors = 8192
	cfg.Log.Level = "info"
	return cfg
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: reading %q: %w", path, err)
	}

	tree, err := textfmt.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config.Load: parsing %q: %w", path, err)
	}

	cfg := &Config{}
	if err := textfmt.Decode(tree, cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// Save serializes cfg and writes it to path.
func Save(path string, cfg *Config) error {
	tree := textfmt.Encode(toPlain(cfg))

	if err := os.WriteFile(path, textfmt.Serialize(tree), 0644); err != nil {
		return fmt.Errorf("config.Save: writing %q: %w", path, err)
	}

	return nil
}

// toPlain renders cfg into the nested map[string]any shape
// textfmt.Encode expects. Config is small and fixed-shape enough that
// hand-written field mapping is clearer here than a reflective inverse of
// Decode.
func toPlain(cfg *Config) map[string]any {
	scanDirs := make([]any, len(cfg.Devices.ScanDirs))
	for i, d := range cfg.Devices.ScanDirs {
		scanDirs[i] = d
	}

	return map[string]any{
		"devices": map[string]any{
			"scan_dirs": scanDirs,
		},
		"allocation": map[string]any{
			"default_extent_size": cfg.Allocation.DefaultExtentSizeSectors,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
		},
	}
}
