package detector

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// literalTemplate renders a GameConfig as the compact Lua table literal
// the emulator-side script expects on the game_config|| frame. Built on
// text/template (stdlib) — see DESIGN.md for why this one component
// doesn't reach for a templating library from the pack: the output is a
// single flat table literal, not a document, and every pack template
// engine examined targets HTML/text documents rather than data literals.
var literalTemplate = template.Must(template.New("game_config").Funcs(template.FuncMap{
	"hex": func(v uint32) string { return fmt.Sprintf("0x%X", v) },
}).Parse(
	`{id="{{.ID}}",name="{{.Name}}",platform="{{.Platform}}",memory_type="{{.MemoryType}}"` +
		`{{if .MemoryAddresses}},addresses={direction={{hex .MemoryAddresses.PlayerDirection}},x={{hex .MemoryAddresses.PlayerX}},y={{hex .MemoryAddresses.PlayerY}},map_id={{hex .MemoryAddresses.MapID}}}{{end}}` +
		`,direction_encoding={ {{.DirEncoding}} }` +
		`,fallback_addresses={ {{.Fallbacks}} }}`,
))

// ToLuaLiteral renders cfg as the table literal embedded in the
// outbound game_config|| frame.
func ToLuaLiteral(cfg GameConfig) (string, error) {
	data := struct {
		GameConfig
		DirEncoding string
		Fallbacks   string
	}{
		GameConfig:  cfg,
		DirEncoding: encodeDirectionMap(cfg.DirectionEncoding),
		Fallbacks:   encodeFallbacks(cfg.FallbackAddresses),
	}
	var sb strings.Builder
	if err := literalTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("detector: render literal for %s: %w", cfg.ID, err)
	}
	return sb.String(), nil
}

func encodeDirectionMap(m map[byte]string) string {
	keys := make([]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("[0x%02X]=\"%s\"", k, m[k]))
	}
	return strings.Join(parts, ",")
}

func encodeFallbacks(sets []AddressSet) string {
	parts := make([]string, 0, len(sets))
	for _, a := range sets {
		parts = append(parts, fmt.Sprintf(
			"{direction=0x%X,x=0x%X,y=0x%X,map_id=0x%X}",
			a.PlayerDirection, a.PlayerX, a.PlayerY, a.MapID,
		))
	}
	return strings.Join(parts, ",")
}
