package detector

import (
	"strings"
	"testing"
)

// TestDetectRoundTrip exercises P7: every known token, in any case,
// round-trips to its game id via rom_name.
func TestDetectRoundTrip(t *testing.T) {
	cases := map[string]string{
		"Pokemon Sapphire (U)":  "pokemon_sapphire",
		"POKEMON RUBY":          "pokemon_ruby",
		"pokemon emerald (u)":  "pokemon_emerald",
		"Pokemon FireRed (U)":  "pokemon_firered",
		"Pokemon LeafGreen":    "pokemon_leafgreen",
		"Pokemon Red (UE)":     "pokemon_red",
		"Pokemon Blue (UE)":    "pokemon_red",
	}
	for romName, want := range cases {
		gotID, source := Detect("", romName, "")
		if gotID != want {
			t.Errorf("Detect(%q) = %q, want %q", romName, gotID, want)
		}
		if source != SourceROMName {
			t.Errorf("Detect(%q) source = %q, want rom_name", romName, source)
		}
	}
}

// TestDetectOverridePrecedence exercises scenario 5: an explicit
// override wins even when rom_name also matches a different token.
func TestDetectOverridePrecedence(t *testing.T) {
	gotID, source := Detect("", "Pokemon Sapphire (U)", "pokemon_emerald")
	if gotID != "pokemon_emerald" || source != SourceOverride {
		t.Fatalf("Detect() = (%q, %q), want (pokemon_emerald, override)", gotID, source)
	}
}

func TestDetectFallsBackToROMPath(t *testing.T) {
	gotID, source := Detect("/roms/pokemon_ruby.gba", "game.gba", "")
	if gotID != "pokemon_ruby" || source != SourceROMPath {
		t.Fatalf("Detect() = (%q, %q), want (pokemon_ruby, rom_path)", gotID, source)
	}
}

func TestDetectDefaultsWhenNothingMatches(t *testing.T) {
	gotID, source := Detect("/roms/mystery.gba", "unknown title", "")
	if gotID != DefaultGameID || source != SourceDefault {
		t.Fatalf("Detect() = (%q, %q), want (%q, default)", gotID, source, DefaultGameID)
	}
}

func TestConfigForUnknownFallsBackToDefault(t *testing.T) {
	cfg := ConfigFor("not_a_real_game")
	if cfg.ID != DefaultGameID {
		t.Fatalf("ConfigFor(unknown).ID = %q, want %q", cfg.ID, DefaultGameID)
	}
}

func TestToLuaLiteralContainsAddresses(t *testing.T) {
	cfg := ConfigFor("pokemon_emerald")
	lit, err := ToLuaLiteral(cfg)
	if err != nil {
		t.Fatalf("ToLuaLiteral() error = %v", err)
	}
	if !strings.Contains(lit, "id=\"pokemon_emerald\"") {
		t.Fatalf("literal missing id field: %s", lit)
	}
	if !strings.Contains(lit, "addresses={") {
		t.Fatalf("literal missing addresses table: %s", lit)
	}
}
