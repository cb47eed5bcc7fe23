package pprof

import (
	"fmt"
	"strings"
)

// ProfileType defines the type of profile to collect.
type ProfileType string

const (
	ProfileCPU       ProfileType = "cpu"
	ProfileHeap      ProfileType = "heap"
	ProfileGoroutine ProfileType = "goroutine"
	ProfileBlock     ProfileType = "block"
	ProfileMutex     ProfileType = "mutex"
	ProfileAllocs    ProfileType = "allocs"
)

// AllProfileTypes returns all supported profile types.
func AllProfileTypes() []ProfileType {
	return []ProfileType{
		ProfileCPU,
		ProfileHeap,
		ProfileGoroutine,
		ProfileBlock,
		ProfileMutex,
		ProfileAllocs,
	}
}

// DefaultProfileTypes returns the profiles that matter most for a collector
// under contention.
func DefaultProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileMutex}
}

// ParseProfileTypes parses a comma-separated string into profile types.
// Duplicates are dropped.
func ParseProfileTypes(s string) ([]ProfileType, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultProfileTypes(), nil
	}

	valid := make(map[ProfileType]bool)
	for _, pt := range AllProfileTypes() {
		valid[pt] = true
	}

	seen := make(map[ProfileType]bool)
	var types []ProfileType
	for _, p := range strings.Split(s, ",") {
		pt := ProfileType(strings.TrimSpace(strings.ToLower(p)))
		if !valid[pt] {
			return nil, fmt.Errorf("unknown profile type: %q", p)
		}
		if seen[pt] {
			continue
		}
		seen[pt] = true
		types = append(types, pt)
	}
	return types, nil
}

// Config holds the profiling configuration for one run.
type Config struct {
	// OutputDir receives one <type>.pprof file per profile.
	OutputDir string
	Profiles  []ProfileType

	// MutexFraction is passed to runtime.SetMutexProfileFraction while
	// the session is open.
	MutexFraction int
	// BlockRate is passed to runtime.SetBlockProfileRate while the
	// session is open.
	BlockRate int
}

// DefaultConfig returns a configuration writing the default profiles to dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		OutputDir:     dir,
		Profiles:      DefaultProfileTypes(),
		MutexFraction: 5,
		BlockRate:     10000,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile type is required")
	}
	if c.MutexFraction < 0 {
		return fmt.Errorf("mutex fraction must be non-negative")
	}
	if c.BlockRate < 0 {
		return fmt.Errorf("block rate must be non-negative")
	}
	return nil
}

// HasProfile reports whether pt is enabled.
func (c *Config) HasProfile(pt ProfileType) bool {
	for _, p := range c.Profiles {
		if p == pt {
			return true
		}
	}
	return false
}
