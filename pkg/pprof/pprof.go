// Package pprof captures runtime profiles around a single run.
//
// A Session starts the CPU profile and raises the mutex and block sampling
// rates when it opens. Stop writes the remaining snapshot profiles next to
// the CPU profile and restores the previous rates:
//
//	s, err := pprof.Start(pprof.DefaultConfig("./profiles"))
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// The files open with `go tool pprof`.
package pprof

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Session is an open profiling window.
type Session struct {
	config *Config

	mu      sync.Mutex
	cpuFile *os.File
	stopped bool
	files   map[ProfileType]string

	prevMutex int
}

// Start validates cfg, creates the output directory and opens a session.
func Start(cfg *Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s := &Session{config: cfg, files: make(map[ProfileType]string)}

	if cfg.HasProfile(ProfileMutex) {
		s.prevMutex = runtime.SetMutexProfileFraction(cfg.MutexFraction)
	}
	if cfg.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(cfg.BlockRate)
	}

	if cfg.HasProfile(ProfileCPU) {
		path := s.path(ProfileCPU)
		f, err := os.Create(path)
		if err != nil {
			s.restoreRates()
			return nil, fmt.Errorf("failed to create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			s.restoreRates()
			return nil, fmt.Errorf("failed to start cpu profile: %w", err)
		}
		s.cpuFile = f
		s.files[ProfileCPU] = path
	}
	return s, nil
}

// Stop ends the CPU profile, writes every snapshot profile and returns the
// written files by type. Calling Stop again returns the same files.
func (s *Session) Stop() (map[ProfileType]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.copyFiles(), nil
	}
	s.stopped = true

	var firstErr error
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := s.cpuFile.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close cpu profile: %w", err)
		}
	}

	for _, pt := range s.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		path := s.path(pt)
		if err := writeSnapshot(pt, path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.files[pt] = path
	}

	s.restoreRates()
	return s.copyFiles(), firstErr
}

func (s *Session) path(pt ProfileType) string {
	return filepath.Join(s.config.OutputDir, string(pt)+".pprof")
}

func (s *Session) copyFiles() map[ProfileType]string {
	out := make(map[ProfileType]string, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

func (s *Session) restoreRates() {
	if s.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(s.prevMutex)
	}
	if s.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(0)
	}
}

func writeSnapshot(pt ProfileType, path string) error {
	if pt == ProfileHeap {
		runtime.GC() // up-to-date heap statistics
	}
	p := pprof.Lookup(string(pt))
	if p == nil {
		return fmt.Errorf("%s profile not found", pt)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", pt, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	return f.Close()
}
