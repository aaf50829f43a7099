package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotDefaultsWhenUnwritten(t *testing.T) {
	s := openTestStore(t)
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.LLMProvider != DefaultSnapshot().LLMProvider {
		t.Fatalf("LLMProvider = %q, want default", snap.LLMProvider)
	}
}

func TestSaveThenSnapshotRoundTrips(t *testing.T) {
	s := openTestStore(t)
	want := DefaultSnapshot()
	want.ROMName = "Pokemon Emerald (U)"
	want.GameOverride = "pokemon_emerald"

	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.ROMName != want.ROMName || got.GameOverride != want.GameOverride {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestWatchEmitsOnSave(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx)

	snap := DefaultSnapshot()
	snap.ROMName = "Pokemon Ruby (U)"
	if err := s.Save(snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case got := <-ch:
		if got.ROMName != "Pokemon Ruby (U)" {
			t.Fatalf("ROMName = %q, want Pokemon Ruby (U)", got.ROMName)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watch notification")
	}
}
