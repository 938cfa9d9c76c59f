// internal/state/prefs.go
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// PrefsStore persists Preferences as a small JSON file. Nothing
// server-derived is ever written here.
type PrefsStore struct {
	path string
	mu   sync.Mutex
}

// NewPrefsStore creates a PrefsStore backed by the file at path.
func NewPrefsStore(path string) *PrefsStore {
	return &PrefsStore{path: path}
}

// Path returns the file path used by this store.
func (p *PrefsStore) Path() string {
	return p.path
}

// Load reads the preferences, returning defaults when the file does not exist.
func (p *PrefsStore) Load() (Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefs := DefaultPreferences()
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("read prefs file: %w", err)
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return DefaultPreferences(), fmt.Errorf("unmarshal prefs: %w", err)
	}
	return prefs, nil
}

// Save writes the preferences atomically.
func (p *PrefsStore) Save(prefs Preferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp prefs file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp prefs file: %w", err)
	}
	return nil
}

// Persist subscribes to store and saves the preferences whenever they change.
// Call the returned function to stop.
func (p *PrefsStore) Persist(store *Store) (unsubscribe func()) {
	var (
		mu   sync.Mutex
		last = store.Snapshot().Preferences()
	)
	return store.Subscribe(func(snap Snapshot) {
		prefs := snap.Preferences()

		mu.Lock()
		defer mu.Unlock()
		if prefs == last {
			return
		}
		if err := p.Save(prefs); err != nil {
			slog.Error("failed to save preferences", "path", p.path, "error", err)
			return
		}
		last = prefs
	})
}
