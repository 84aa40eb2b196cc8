// Package integration assembles a runnable alligator node: storage, the
// reference tally system, the votes token, the chain clock and the alligator
// itself. Presets bundle the storage and observability settings into named
// profiles so operators do not have to tune each flag separately.
//
// Usage:
//   preset := integration.DevPreset()        // in-memory, throwaway
//   preset := integration.ProductionPreset() // leveldb, metrics on
//
// Each preset returns a PresetConfig that the launcher merges into its
// config before the node is built.
package integration

import "fmt"

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// PresetConfig captures the tunable parameters that vary across preset profiles.
type PresetConfig struct {
	Name          string // human-readable identifier (e.g., "dev", "production")
	Backend       string // storage backend: "memory" or "leveldb"
	CacheMB       int    // leveldb cache size
	Handles       int    // leveldb open file handles
	EnableMetrics bool   // whether to expose the /metrics endpoint
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:          "default",
		Backend:       BackendLevelDB, // rules and edge spend survive restarts
		CacheMB:       256,
		Handles:       256,
		EnableMetrics: false,
	}
}

// DevPreset keeps everything in memory. Use it for local devnets, scenario
// replays and CI, never for anything that must survive a restart.
func DevPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "dev"
	cfg.Backend = BackendMemory
	cfg.CacheMB = 0
	cfg.Handles = 0
	cfg.EnableMetrics = true
	return cfg
}

// ProductionPreset uses a larger leveldb cache and exposes metrics.
func ProductionPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "production"
	cfg.CacheMB = 1024
	cfg.Handles = 1024
	cfg.EnableMetrics = true
	return cfg
}

// GetPresetByName looks up a preset by its string identifier.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "dev":
		return DevPreset(), nil
	case "production":
		return ProductionPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: dev, production, default)", name)
	}
}

// ApplyPreset merges preset into target. Zero numeric fields in the preset
// leave the target untouched.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Backend != "" {
		target.Backend = preset.Backend
	}
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	// boolean flags are always applied
	target.EnableMetrics = preset.EnableMetrics
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
