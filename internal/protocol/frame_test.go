package protocol

import (
	"math/rand"
	"strings"
	"testing"
)

func TestParseLineReady(t *testing.T) {
	m, malformed := ParseLine("ready||true")
	if malformed || m.Kind != KindReady {
		t.Fatalf("ParseLine() = %+v, malformed=%v", m, malformed)
	}
}

func TestParseLineScreenshotWithState(t *testing.T) {
	m, malformed := ParseLine("screenshot_with_state||/tmp/a.png||UP||10||6||1")
	if malformed {
		t.Fatalf("unexpected malformed")
	}
	if m.Kind != KindScreenshotWithState || m.Current != "/tmp/a.png" || m.Direction != "UP" || m.X != 10 || m.Y != 6 || m.MapID != 1 {
		t.Fatalf("unexpected message: %+v", m)
	}
}

// TestParseLineEnhanced exercises scenario 2's assembled frame.
func TestParseLineEnhanced(t *testing.T) {
	line := "enhanced_screenshot_with_state||/p/cur.png||/p/prev.png||DOWN||12||5||1||2"
	m, malformed := ParseLine(line)
	if malformed {
		t.Fatalf("unexpected malformed")
	}
	if m.Kind != KindEnhancedScreenshotWithState {
		t.Fatalf("Kind = %v, want enhanced", m.Kind)
	}
	if m.Current != "/p/cur.png" || m.Previous != "/p/prev.png" || m.Direction != "DOWN" ||
		m.X != 12 || m.Y != 5 || m.MapID != 1 || m.ButtonCount != 2 {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestParseLineConfigError(t *testing.T) {
	m, malformed := ParseLine("config_error||unsupported rom")
	if malformed || m.Kind != KindConfigError || m.Detail != "unsupported rom" {
		t.Fatalf("unexpected: %+v malformed=%v", m, malformed)
	}
}

func TestParseLineUnknownButTolerated(t *testing.T) {
	_, malformed := ParseLine("weird_png_thing||nothing||useful")
	if malformed {
		t.Fatalf("expected tolerated, not malformed")
	}
}

func TestParseLineResidualScreenshotRecovery(t *testing.T) {
	// Missing the "screenshot_with_state||" prefix but shaped like its body.
	m, malformed := ParseLine("/tmp/a.png||UP||10||6||1")
	if malformed {
		t.Fatalf("expected recovery, not malformed")
	}
	if m.Kind != KindScreenshotWithState || m.Current != "/tmp/a.png" {
		t.Fatalf("unexpected recovery result: %+v", m)
	}
}

func TestParseLineGenuinelyMalformed(t *testing.T) {
	_, malformed := ParseLine("")
	if !malformed {
		t.Fatalf("expected empty line to be malformed")
	}
}

func TestReassemblerSingleFeed(t *testing.T) {
	r := &Reassembler{}
	lines := r.Feed([]byte("ready||true\nconfig_loaded||true\n"))
	if len(lines) != 2 || lines[0] != "ready||true" || lines[1] != "config_loaded||true" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

// TestReassemblerSplitFrame exercises scenario 2: a frame delivered as
// two chunks split mid-field must still assemble into one line.
func TestReassemblerSplitFrame(t *testing.T) {
	r := &Reassembler{}
	first := r.Feed([]byte("enhanced_screenshot_with_state||/p/cur.png||/p/prev.png||DOWN||"))
	if len(first) != 0 {
		t.Fatalf("expected no complete line yet, got %v", first)
	}
	second := r.Feed([]byte("12||5||1||2\n"))
	if len(second) != 1 {
		t.Fatalf("expected one complete line, got %v", second)
	}
	m, malformed := ParseLine(second[0])
	if malformed || m.Kind != KindEnhancedScreenshotWithState || m.X != 12 {
		t.Fatalf("unexpected assembled message: %+v malformed=%v", m, malformed)
	}
}

// TestReassemblerByteAtATime is P8: any partition of the byte stream,
// down to single bytes, produces the same parsed frame sequence.
func TestReassemblerByteAtATime(t *testing.T) {
	stream := "ready||true\nconfig_loaded||true\nscreenshot_with_state||/a.png||UP||1||2||3\n"
	r := &Reassembler{}
	var lines []string
	for i := 0; i < len(stream); i++ {
		lines = append(lines, r.Feed([]byte{stream[i]})...)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3: %v", len(lines), lines)
	}
	if lines[0] != "ready||true" || lines[1] != "config_loaded||true" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

// TestReassemblerRandomChunking asserts P8 holds for arbitrary chunk
// boundaries, not just byte-at-a-time.
func TestReassemblerRandomChunking(t *testing.T) {
	stream := "ready||true\nconfig_loaded||true\nstate||DOWN||1||2||3\nconfig_error||bad rom\n"
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		r := &Reassembler{}
		var lines []string
		remaining := []byte(stream)
		for len(remaining) > 0 {
			n := 1 + rng.Intn(len(remaining))
			lines = append(lines, r.Feed(remaining[:n])...)
			remaining = remaining[n:]
		}
		want := strings.Split(strings.TrimSuffix(stream, "\n"), "\n")
		if len(lines) != len(want) {
			t.Fatalf("trial %d: len(lines) = %d, want %d: %v", trial, len(lines), len(want), lines)
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Fatalf("trial %d: line %d = %q, want %q", trial, i, lines[i], want[i])
			}
		}
	}
}
