package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

func TestWaitForScreenshotSucceedsOnStableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := WaitForScreenshot(path, buttons.ClassBase, 50, 200, 1, 1, 1)
	if err != nil {
		t.Fatalf("WaitForScreenshot() error = %v", err)
	}
}

func TestWaitForScreenshotTimesOutOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-written.png")
	start := time.Now()
	err := WaitForScreenshot(path, buttons.ClassBase, 10, 60, 1, 1, 1)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	adapterErr, ok := err.(*AdapterError)
	if !ok || adapterErr.Kind != ErrFileMissing {
		t.Fatalf("error = %v, want *AdapterError{Kind: file_missing}", err)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatal("returned before the wait budget elapsed")
	}
}
