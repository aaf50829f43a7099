package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemplate(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

const tmplBody = "map={current_map} x={player_x} y={player_y} dir={player_direction} actions={recent_actions} notepad={notepad_content} | {spatial_context} | {direction_guidance}"

// TestRenderStuckDetection exercises scenario 4: three identical
// consecutive positions must surface "stuck" in direction_guidance.
func TestRenderStuckDetection(t *testing.T) {
	path := writeTemplate(t, tmplBody)
	pt, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	defer pt.Close()

	history := []PositionSample{
		{X: 5, Y: 5, MapID: 1},
		{X: 5, Y: 5, MapID: 1},
		{X: 5, Y: 5, MapID: 1},
	}
	out := pt.Render(RenderContext{PlayerDirection: "UP", History: history})
	if !strings.Contains(strings.ToLower(out), "stuck") {
		t.Fatalf("rendered prompt missing stuck hint: %s", out)
	}
}

func TestRenderOscillationDetection(t *testing.T) {
	path := writeTemplate(t, tmplBody)
	pt, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	defer pt.Close()

	history := []PositionSample{
		{X: 5, Y: 5, MapID: 1},
		{X: 5, Y: 6, MapID: 1},
		{X: 5, Y: 5, MapID: 1},
		{X: 5, Y: 6, MapID: 1},
	}
	out := pt.Render(RenderContext{PlayerDirection: "UP", History: history})
	if !strings.Contains(strings.ToLower(out), "oscillat") {
		t.Fatalf("rendered prompt missing oscillation hint: %s", out)
	}
}

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	path := writeTemplate(t, tmplBody)
	pt, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	defer pt.Close()

	out := pt.Render(RenderContext{
		RecentActions:   []string{"UP", "A"},
		NotepadContent:  "remember this",
		CurrentMap:      3,
		PlayerX:         10,
		PlayerY:         20,
		PlayerDirection: "DOWN",
	})
	if strings.Contains(out, "{") {
		t.Fatalf("unsubstituted placeholder remains: %s", out)
	}
	if !strings.Contains(out, "remember this") {
		t.Fatalf("notepad content missing: %s", out)
	}
}

func TestRenderReloadsOnContentChange(t *testing.T) {
	path := writeTemplate(t, "version-one {player_x}")
	pt, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	defer pt.Close()

	if err := os.WriteFile(path, []byte("version-two {player_x}"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out := pt.Render(RenderContext{})
	if !strings.Contains(out, "version-two") {
		t.Fatalf("expected reload to pick up version-two, got: %s", out)
	}
}

func TestLastKTruncatesToMostRecent(t *testing.T) {
	got := lastK([]string{"A", "B", "C", "D"}, 2)
	if len(got) != 2 || got[0] != "C" || got[1] != "D" {
		t.Fatalf("lastK = %v, want [C D]", got)
	}
}
