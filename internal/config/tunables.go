package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSideEffectTimeout bounds each best-effort side effect of a push.
const DefaultSideEffectTimeout = 30 * time.Second

// Tunables are process-wide switches that can change while the server runs.
type Tunables struct {
	// MutationAcceptForInfinitepush enables storing client mutation
	// history for pushes and scratch pushes.
	MutationAcceptForInfinitepush bool `yaml:"mutation_accept_for_infinitepush"`
	// SideEffectTimeout bounds audit logging and bundle preservation.
	SideEffectTimeout time.Duration `yaml:"side_effect_timeout"`
}

// DefaultTunables returns the tunables used when none are configured.
func DefaultTunables() Tunables {
	return Tunables{SideEffectTimeout: DefaultSideEffectTimeout}
}

// TunablesStore holds the current Tunables. Readers get a consistent
// snapshot; Set and Reload swap the whole value atomically.
type TunablesStore struct {
	current atomic.Pointer[Tunables]
}

// NewTunablesStore creates a store holding t.
func NewTunablesStore(t Tunables) *TunablesStore {
	s := &TunablesStore{}
	s.Set(t)
	return s
}

// Get returns the current tunables.
func (s *TunablesStore) Get() Tunables {
	if t := s.current.Load(); t != nil {
		return *t
	}
	return DefaultTunables()
}

// Set replaces the current tunables.
func (s *TunablesStore) Set(t Tunables) {
	if t.SideEffectTimeout <= 0 {
		t.SideEffectTimeout = DefaultSideEffectTimeout
	}
	s.current.Store(&t)
}

// Reload reads tunables from a YAML file and swaps them in. On error the
// previous tunables stay in effect.
func (s *TunablesStore) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reload tunables: %w", err)
	}
	t := DefaultTunables()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("reload tunables %s: %w", path, err)
	}
	s.Set(t)
	return nil
}
