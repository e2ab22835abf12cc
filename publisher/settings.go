package publisher

import (
	"sync/atomic"

	"github.com/maxpert/padhook/cfg"
)

// Snapshot is an immutable view of the webhook settings at one generation
type Snapshot struct {
	Settings   *cfg.WebhookSettings
	Generation uint64
}

// SettingsStore holds the webhook settings currently in force.
// A nil snapshot means no configuration was loaded.
type SettingsStore struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewSettingsStore creates an unset store
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

// Store installs settings. nil unsets the store.
func (s *SettingsStore) Store(settings *cfg.WebhookSettings) {
	if settings == nil {
		s.current.Store(nil)
		return
	}
	s.current.Store(&Snapshot{
		Settings:   settings,
		Generation: s.generation.Add(1),
	})
}

// Load returns the current snapshot or nil
func (s *SettingsStore) Load() *Snapshot {
	return s.current.Load()
}

// Loaded reports whether settings are installed
func (s *SettingsStore) Loaded() bool {
	return s.current.Load() != nil
}
