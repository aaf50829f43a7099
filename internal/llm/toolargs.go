package llm

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

// parseToolArgs decodes the press_button tool call's raw JSON arguments
// into a button Sequence. Vendor SDKs return this as a free-form string;
// models occasionally wrap it in markdown fences or trailing prose, so
// this extracts by path with gjson rather than requiring encoding/json
// to parse the whole string cleanly.
func parseToolArgs(raw string) buttons.Sequence {
	raw = stripCodeFence(raw)
	names := gjson.Get(raw, "buttons").Array()
	durations := gjson.Get(raw, "durations").Array()

	seq := make(buttons.Sequence, 0, len(names))
	for i, n := range names {
		code, ok := buttons.ParseCode(n.String())
		if !ok {
			continue
		}
		dur := buttons.DefaultDuration
		if i < len(durations) {
			dur = int(durations[i].Int())
		}
		seq = append(seq, buttons.Action{Code: code, Duration: dur})
	}
	return seq.Sanitize()
}

// parseNotepadEntry decodes the update_notepad tool call's raw JSON
// arguments into the note text, tolerating the same code-fence wrapping
// parseToolArgs does.
func parseNotepadEntry(raw string) string {
	raw = stripCodeFence(raw)
	return gjson.Get(raw, "entry").String()
}

// stripCodeFence trims a leading/trailing markdown code fence (with an
// optional language tag) so a model response like "```json\n{...}\n```"
// still parses as the bare JSON object.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
