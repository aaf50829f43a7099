// Package buttons defines the fixed Game Boy / Game Boy Advance button
// vocabulary shared by the protocol engine and the LLM adapter: the
// button enum, action sequences, the outbound wire encoding, and the
// classification used for cooldown gating.
package buttons

import (
	"strconv"
	"strings"
)

// Code is one of the ten buttons the emulator script recognizes.
type Code int

const (
	A Code = iota
	B
	SELECT
	START
	RIGHT
	LEFT
	UP
	DOWN
	R
	L
)

var names = [...]string{
	A: "A", B: "B", SELECT: "SELECT", START: "START",
	RIGHT: "RIGHT", LEFT: "LEFT", UP: "UP", DOWN: "DOWN", R: "R", L: "L",
}

// String renders the button name the emulator-side script expects.
func (c Code) String() string {
	if c < 0 || int(c) >= len(names) {
		return "?"
	}
	return names[c]
}

// Valid reports whether c is one of the ten recognized codes.
func (c Code) Valid() bool {
	return c >= A && c <= L
}

// ParseCode maps a case-insensitive button name to its Code.
func ParseCode(name string) (Code, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range names {
		if n == upper {
			return Code(i), true
		}
	}
	return 0, false
}

const (
	// DefaultDuration is used when the LLM omits a duration for an action.
	DefaultDuration = 2
	minDuration     = 1
	maxDuration     = 180
)

// Action is a single button press held for duration frames.
type Action struct {
	Code     Code
	Duration int
}

// Clamp enforces invariant 3: code must be in range or the action is
// dropped by the caller; duration out of range is replaced with the
// default rather than clamped to the nearest bound, matching spec.md
// §4.4's button-frame encoding rule ("durations out of range are
// replaced with the default").
func (a Action) Clamp() Action {
	out := a
	if out.Duration < minDuration || out.Duration > maxDuration {
		out.Duration = DefaultDuration
	}
	return out
}

// Sequence is a non-empty ordered list of actions.
type Sequence []Action

// Sanitize drops out-of-range codes and clamps durations, preserving
// order. The result may be empty if every action named an invalid code.
func (s Sequence) Sanitize() Sequence {
	out := make(Sequence, 0, len(s))
	for _, a := range s {
		if !a.Code.Valid() {
			continue
		}
		out = append(out, a.Clamp())
	}
	return out
}

// Names returns the button names in order, for prompt rendering and
// for the chat buffer's recent-actions history.
func (s Sequence) Names() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Code.String()
	}
	return out
}

// EncodeFrame renders the outbound wire form: "codes" when every
// duration equals DefaultDuration, else "codes||durs". This is the
// resolution of spec.md §9's Open Question: the result is opaque after
// the first "||" and must never be fed back through the inbound frame
// parser.
func EncodeFrame(s Sequence) string {
	clean := s.Sanitize()
	if len(clean) == 0 {
		return ""
	}

	codes := make([]string, len(clean))
	durs := make([]string, len(clean))
	allDefault := true
	for i, a := range clean {
		codes[i] = strconv.Itoa(int(a.Code))
		durs[i] = strconv.Itoa(a.Duration)
		if a.Duration != DefaultDuration {
			allDefault = false
		}
	}

	if allDefault {
		return strings.Join(codes, ",")
	}
	return strings.Join(codes, ",") + "||" + strings.Join(durs, ",")
}

// Class is the action classification used for cooldown gating (gate
// step of the cycle loop) and for the next cycle's stabilization wait.
type Class int

const (
	ClassBase Class = iota
	ClassMovement
	ClassInteraction
	ClassMenu
)

func (c Class) String() string {
	switch c {
	case ClassMovement:
		return "movement"
	case ClassInteraction:
		return "interaction"
	case ClassMenu:
		return "menu"
	default:
		return "base"
	}
}

// Classify implements spec.md §4.4's ordered rule set, resolved for
// mixed sequences as documented in SPEC_FULL.md §9: menu beats
// interaction beats movement beats base. This is the "one place"
// DESIGN NOTES anticipates adjusting if a provider prefers
// movement-biased pacing — reorder the three checks below.
func Classify(s Sequence) Class {
	var hasMenu, hasInteraction, hasMovement bool
	for _, a := range s {
		switch a.Code {
		case START, SELECT:
			hasMenu = true
		case A, B:
			hasInteraction = true
		case UP, DOWN, LEFT, RIGHT:
			hasMovement = true
		}
	}
	switch {
	case hasMenu:
		return ClassMenu
	case hasInteraction:
		return ClassInteraction
	case hasMovement:
		return ClassMovement
	default:
		return ClassBase
	}
}

// ClassFactor maps an action class to the multiplier applied to
// decision_cooldown_s (gate step) and to base_stabilization_ms
// (readiness wait).
func ClassFactor(c Class, movementMultiplier, interactionMultiplier, menuMultiplier float64) float64 {
	switch c {
	case ClassMovement:
		return movementMultiplier
	case ClassInteraction:
		return interactionMultiplier
	case ClassMenu:
		return menuMultiplier
	default:
		return 1.0
	}
}
