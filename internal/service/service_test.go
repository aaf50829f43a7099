package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/recassity/mgba-bridge/internal/llm"
)

func TestNewBuildsAnthropicProviderByDefault(t *testing.T) {
	svc, err := New(Options{ConfigDBPath: filepath.Join(t.TempDir(), "config.db")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Stop()

	if svc.Buffer() == nil {
		t.Fatal("expected a non-nil Chat Buffer")
	}
	if svc.ConfigStore() == nil {
		t.Fatal("expected a non-nil config store")
	}

	snap, err := svc.ConfigStore().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, ok := buildProvider(snap).(*llm.AnthropicProvider); !ok {
		t.Fatalf("buildProvider(%q) is not *llm.AnthropicProvider", snap.LLMProvider)
	}
}

func TestStartBindsEphemeralPortThenStops(t *testing.T) {
	svc, err := New(Options{
		ConfigDBPath: filepath.Join(t.TempDir(), "config.db"),
		ListenAddr:   "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestStartFailsOnUnbindableAddress(t *testing.T) {
	svc, err := New(Options{
		ConfigDBPath: filepath.Join(t.TempDir(), "config.db"),
		ListenAddr:   "not-a-valid-address",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.cfgStore.Close()

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected Start() to fail on an unbindable address")
	}
}
