// internal/state/prefs_test.go
package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrefsStore_LoadDefaults(t *testing.T) {
	p := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.json"))

	prefs, err := p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if prefs != DefaultPreferences() {
		t.Errorf("expected defaults, got %+v", prefs)
	}
}

func TestPrefsStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	p := NewPrefsStore(path)

	want := Preferences{SearchEnabled: true, SidebarOpen: false}
	if err := p.Save(want); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after successful save")
	}

	got, err := NewPrefsStore(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestPrefsStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	prefs, err := NewPrefsStore(path).Load()
	if err == nil {
		t.Fatal("expected error for corrupt prefs file")
	}
	if prefs != DefaultPreferences() {
		t.Errorf("expected defaults on error, got %+v", prefs)
	}
}

func TestPrefsStore_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	p := NewPrefsStore(path)
	store := NewStore(DefaultPreferences())

	unsubscribe := p.Persist(store)
	defer unsubscribe()

	// Non-preference changes do not write the file.
	store.SetExchangeInFlight(true)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("prefs file should not be written for non-preference changes")
	}

	store.ToggleSearchEnabled()

	got, err := p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !got.SearchEnabled {
		t.Error("expected search_enabled to be persisted")
	}

	// Reset keeps preferences, so the file still says search is on.
	store.Reset()
	got, err = p.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !got.SearchEnabled {
		t.Error("expected search_enabled to survive reset")
	}
}
