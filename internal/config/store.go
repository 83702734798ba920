package config

import (
	"errors"
	"sync"
)

// ErrNotLoaded is returned when settings are read before they were set.
var ErrNotLoaded = errors.New("settings not loaded")

// Store holds the process-wide Settings snapshot. It is written once at
// startup (or in test setup) and read concurrently by every signal.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	loaded   bool
}

// NewStore returns a Store already holding s.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Set replaces the stored settings.
func (st *Store) Set(s Settings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings = s
	st.loaded = true
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() (Settings, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.loaded {
		return Settings{}, ErrNotLoaded
	}
	return st.settings, nil
}

// Loaded reports whether Set has been called.
func (st *Store) Loaded() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.loaded
}
