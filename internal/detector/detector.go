// Package detector implements C2: pure data plus string matching that
// maps a ROM's identity onto a stable game id, and serves that game's
// memory layout. It performs no I/O of its own — the caller supplies
// rom_path/rom_name/override from a config.Snapshot.
package detector

import "strings"

// Source names how a detection decision was reached (spec.md §4.2).
type Source string

const (
	SourceOverride Source = "override"
	SourceROMName  Source = "rom_name"
	SourceROMPath  Source = "rom_path"
	SourceDefault  Source = "default"
)

// DefaultGameID is returned when no override or token matches.
const DefaultGameID = "pokemon_red"

// tokenEntry is one row of the token table; order matters (§4.2's
// "first match in insertion order wins").
type tokenEntry struct {
	token  string
	gameID string
}

var tokenTable = []tokenEntry{
	{"sapphire", "pokemon_sapphire"},
	{"ruby", "pokemon_ruby"},
	{"emerald", "pokemon_emerald"},
	{"firered", "pokemon_firered"},
	{"leafgreen", "pokemon_leafgreen"},
	{"red", "pokemon_red"},
	{"blue", "pokemon_red"},
}

// Detect implements spec.md §4.2's precedence: explicit override, then
// case-insensitive substring match against romName, then romPath, then
// DefaultGameID.
func Detect(romPath, romName, override string) (gameID string, source Source) {
	if override != "" {
		return override, SourceOverride
	}
	if id, ok := matchToken(romName); ok {
		return id, SourceROMName
	}
	if id, ok := matchToken(romPath); ok {
		return id, SourceROMPath
	}
	return DefaultGameID, SourceDefault
}

func matchToken(haystack string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, e := range tokenTable {
		if strings.Contains(lower, e.token) {
			return e.gameID, true
		}
	}
	return "", false
}

// Platform enumerates the two supported cartridge platforms.
type Platform string

const (
	PlatformGameBoy          Platform = "Game Boy"
	PlatformGameBoyAdvance   Platform = "Game Boy Advance"
)

// MemoryType distinguishes games whose memory layout is fixed at a
// known address from games whose layout must be resolved dynamically.
type MemoryType string

const (
	MemoryStatic  MemoryType = "static"
	MemoryDynamic MemoryType = "dynamic"
)

// AddressSet is the four memory addresses the emulator script reads
// to decode position/direction/map, keyed exactly as spec.md §3 names
// them.
type AddressSet struct {
	PlayerDirection uint32
	PlayerX         uint32
	PlayerY         uint32
	MapID           uint32
}

// GameConfig is the per-game record served by ConfigFor (spec.md §3).
type GameConfig struct {
	ID                string
	Name              string
	Platform          Platform
	MemoryType        MemoryType
	MemoryAddresses   *AddressSet // nil when MemoryType == MemoryDynamic
	DirectionEncoding map[byte]string
	FallbackAddresses []AddressSet
}

// standardGBADirections is the byte->label table shared by the
// Ruby/Sapphire/Emerald/FireRed/LeafGreen generation (Pokemon gen 3
// games all share the same overworld direction encoding).
var standardGBADirections = map[byte]string{
	0x01: "DOWN",
	0x02: "UP",
	0x03: "LEFT",
	0x04: "RIGHT",
}

// standardGBDirections is the Generation 1 (Red/Blue) direction byte
// encoding.
var standardGBDirections = map[byte]string{
	0x00: "DOWN",
	0x04: "UP",
	0x08: "LEFT",
	0x0C: "RIGHT",
}

var builtins = map[string]GameConfig{
	"pokemon_red": {
		ID: "pokemon_red", Name: "Pokemon Red", Platform: PlatformGameBoy,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0xC109, PlayerX: 0xD362, PlayerY: 0xD361, MapID: 0xD35E,
		},
		DirectionEncoding: standardGBDirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0xC109, PlayerX: 0xD362, PlayerY: 0xD361, MapID: 0xD35E},
		},
	},
	"pokemon_sapphire": {
		ID: "pokemon_sapphire", Name: "Pokemon Sapphire", Platform: PlatformGameBoyAdvance,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0x02037340, PlayerX: 0x02037344, PlayerY: 0x02037346, MapID: 0x02037348,
		},
		DirectionEncoding: standardGBADirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0x02037340, PlayerX: 0x02037344, PlayerY: 0x02037346, MapID: 0x02037348},
			{PlayerDirection: 0x020375B0, PlayerX: 0x020375B4, PlayerY: 0x020375B6, MapID: 0x020375B8},
		},
	},
	"pokemon_ruby": {
		ID: "pokemon_ruby", Name: "Pokemon Ruby", Platform: PlatformGameBoyAdvance,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0x02037340, PlayerX: 0x02037344, PlayerY: 0x02037346, MapID: 0x02037348,
		},
		DirectionEncoding: standardGBADirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0x02037340, PlayerX: 0x02037344, PlayerY: 0x02037346, MapID: 0x02037348},
			{PlayerDirection: 0x020375B0, PlayerX: 0x020375B4, PlayerY: 0x020375B6, MapID: 0x020375B8},
		},
	},
	"pokemon_emerald": {
		ID: "pokemon_emerald", Name: "Pokemon Emerald", Platform: PlatformGameBoyAdvance,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0x020244EC, PlayerX: 0x020244F0, PlayerY: 0x020244F2, MapID: 0x02031DB4,
		},
		DirectionEncoding: standardGBADirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0x020244EC, PlayerX: 0x020244F0, PlayerY: 0x020244F2, MapID: 0x02031DB4},
		},
	},
	"pokemon_firered": {
		ID: "pokemon_firered", Name: "Pokemon FireRed", Platform: PlatformGameBoyAdvance,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0x02036E08, PlayerX: 0x02036E0C, PlayerY: 0x02036E0E, MapID: 0x02036E18,
		},
		DirectionEncoding: standardGBADirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0x02036E08, PlayerX: 0x02036E0C, PlayerY: 0x02036E0E, MapID: 0x02036E18},
			{PlayerDirection: 0x02037AF0, PlayerX: 0x02037AF4, PlayerY: 0x02037AF6, MapID: 0x02037B00},
		},
	},
	"pokemon_leafgreen": {
		ID: "pokemon_leafgreen", Name: "Pokemon LeafGreen", Platform: PlatformGameBoyAdvance,
		MemoryType: MemoryStatic,
		MemoryAddresses: &AddressSet{
			PlayerDirection: 0x02036E08, PlayerX: 0x02036E0C, PlayerY: 0x02036E0E, MapID: 0x02036E18,
		},
		DirectionEncoding: standardGBADirections,
		FallbackAddresses: []AddressSet{
			{PlayerDirection: 0x02036E08, PlayerX: 0x02036E0C, PlayerY: 0x02036E0E, MapID: 0x02036E18},
			{PlayerDirection: 0x02037AF0, PlayerX: 0x02037AF4, PlayerY: 0x02037AF6, MapID: 0x02037B00},
		},
	},
}

// ConfigFor returns the GameConfig for gameID, falling back to the
// default game's config if gameID is unrecognized (detection always
// returns a valid id from the built-in table or the override, so this
// only guards against a stale/unknown override value).
func ConfigFor(gameID string) GameConfig {
	if cfg, ok := builtins[gameID]; ok {
		return cfg
	}
	return builtins[DefaultGameID]
}

// KnownGameIDs lists every built-in game id, in table order — used by
// the out-of-scope /api/games/ listing endpoint.
func KnownGameIDs() []string {
	ids := make([]string, 0, len(builtins))
	for _, e := range tokenTable {
		dup := false
		for _, existing := range ids {
			if existing == e.gameID {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, e.gameID)
		}
	}
	return ids
}
