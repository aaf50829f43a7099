// Package notepad implements the plain-text long-term memory file. The
// Protocol Engine reads it into the prompt and appends the entries the
// LLM Adapter returns from an update_notepad tool call. Grounded directly on spec.md §5's
// "writes appended atomically (write-temp + rename)" — no pack
// precedent needed beyond os.Rename's same-filesystem atomicity.
package notepad

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Read returns the full contents of path plus the number of
// newline-delimited entries it holds. A missing file is treated as
// empty rather than an error — the notepad may not exist until the
// first append.
func Read(path string) (content string, entries int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("notepad: read %s: %w", path, err)
	}
	content = string(raw)
	if content == "" {
		return "", 0, nil
	}
	return content, strings.Count(strings.TrimRight(content, "\n"), "\n") + 1, nil
}

// Truncate empties path, creating it if absent.
func Truncate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("notepad: create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("notepad: truncate %s: %w", path, err)
	}
	return f.Close()
}

// Append adds entry, newline-terminated, to path using a write-temp,
// fsync, and rename so a crash mid-write never corrupts the existing
// content (spec.md §5, "Notepad file... writes appended atomically").
func Append(path, entry string) error {
	existing, _, err := Read(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("notepad: create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".notepad-*.tmp")
	if err != nil {
		return fmt.Errorf("notepad: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.TrimRight(entry, "\n") + "\n"

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("notepad: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("notepad: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("notepad: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("notepad: rename temp file onto %s: %w", path, err)
	}
	return nil
}
