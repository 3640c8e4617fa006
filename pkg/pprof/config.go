// Package pprof profiles the scanner process itself.
//
// File mode records a CPU profile for the lifetime of the collector and
// writes snapshots of the other profiles when it stops. HTTP mode serves the
// net/http/pprof endpoints for on-demand collection:
//
//	c, err := pprof.NewCollector(pprof.Config{Mode: pprof.ModeHTTP, Addr: ":6060"}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := c.Start(); err != nil {
//	    return err
//	}
//	defer c.Stop()
package pprof

import (
	"strings"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// ModeType defines the pprof collection mode.
type ModeType string

const (
	// ModeFile writes profiles to files when the collector stops.
	ModeFile ModeType = "file"
	// ModeHTTP exposes pprof endpoints via HTTP.
	ModeHTTP ModeType = "http"
)

// ProfileType names a runtime profile.
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
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine, ProfileBlock, ProfileMutex, ProfileAllocs}
}

// DefaultProfileTypes returns the profiles collected when none are named.
func DefaultProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine}
}

// ParseProfileTypes parses a comma-separated list such as "cpu,heap".
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
			return nil, apperrors.Newf(apperrors.CodeConfigError, "unknown profile type: %q", p)
		}
		if !seen[pt] {
			seen[pt] = true
			types = append(types, pt)
		}
	}
	return types, nil
}

// Config holds the pprof configuration.
type Config struct {
	Mode     ModeType
	Profiles []ProfileType
	// OutputDir receives profiles in file mode.
	OutputDir string
	// Addr is the listen address in HTTP mode.
	Addr string
}

// DefaultConfig returns a file mode configuration.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeFile,
		Profiles:  DefaultProfileTypes(),
		OutputDir: "./pprof",
		Addr:      ":6060",
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFile:
		if c.OutputDir == "" {
			return apperrors.New(apperrors.CodeConfigError, "pprof output directory is required")
		}
		if len(c.Profiles) == 0 {
			return apperrors.New(apperrors.CodeConfigError, "at least one profile type must be specified")
		}
	case ModeHTTP:
		if c.Addr == "" {
			return apperrors.New(apperrors.CodeConfigError, "pprof HTTP address is required")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "invalid pprof mode: %q (valid: file, http)", c.Mode)
	}
	return nil
}

// HasProfile checks if a profile type is enabled.
func (c Config) HasProfile(pt ProfileType) bool {
	for _, p := range c.Profiles {
		if p == pt {
			return true
		}
	}
	return false
}
