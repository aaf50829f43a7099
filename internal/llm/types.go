// Package llm implements C3: a provider-agnostic "screenshot(s)+context
// in, button sequence out" adapter. Two vendor SDKs sit behind one
// Provider interface so the Protocol Engine never sees which vendor is
// in play. Grounded on the teacher's per-integration translation layer
// (nIntegrationClient.go's setupBackendCallbacks) — here generalized
// into per-provider request builders and error classifiers instead of
// per-event callbacks.
package llm

import (
	"context"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

// ErrorKind is the taxonomy spec.md §4.3 maps every vendor error onto.
type ErrorKind string

const (
	ErrNetwork     ErrorKind = "network"
	ErrTimeout     ErrorKind = "timeout"
	ErrAuth        ErrorKind = "auth"
	ErrRateLimit   ErrorKind = "rate_limit"
	ErrBadResponse ErrorKind = "bad_response"
	ErrFileMissing ErrorKind = "file_missing"
)

// AdapterError is the error value a Provider reports; it never panics
// or propagates a raw SDK error upward.
type AdapterError struct {
	Kind    ErrorKind
	Message string
}

func (e *AdapterError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ImageAttachment is one base64 data-URI PNG attached to the request,
// already ordered previous-then-current per spec.md's image policy.
type ImageAttachment struct {
	DataURI string
}

// AnalyzeRequest carries everything a Provider needs for one decision.
type AnalyzeRequest struct {
	Prompt     string
	Images     []ImageAttachment
	GameState  GameState
	ModelName  string
	APIKey     string
}

// GameState mirrors the wire-level state the Protocol Engine decoded;
// kept separate from chatbuffer.GameState so this package has no
// import-cycle dependency on the buffer.
type GameState struct {
	Direction string
	X, Y      int
	MapID     int
}

// Decision is what the Protocol Engine's cycle driver acts on.
type Decision struct {
	Text    string
	Actions buttons.Sequence
	// NotepadEntry is non-empty when the model called update_notepad;
	// the cycle driver appends it via internal/notepad.
	NotepadEntry string
	Err          *AdapterError
}

// Provider is the single operation every vendor implementation offers.
type Provider interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (Decision, error)
}

// pressButtonToolName is the button-pressing tool every provider
// advertises, alongside updateNotepadToolName.
const pressButtonToolName = "press_button"

const pressButtonToolDescription = "Press one or more Game Boy buttons in sequence to control the game."

// pressButtonParametersSchema is the JSON schema both SDKs attach to
// their native tool/function definition.
var pressButtonParametersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"buttons": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Button names to press in order, e.g. [\"UP\",\"A\"]",
		},
		"durations": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "integer"},
			"description": "Optional per-button hold duration in frames (1-180, default 2).",
		},
	},
	"required": []string{"buttons"},
}

// updateNotepadToolName is a second tool both providers advertise
// alongside press_button, letting the model persist a short note to
// the long-term memory notepad file between cycles.
const updateNotepadToolName = "update_notepad"

const updateNotepadToolDescription = "Append a short note to long-term memory to remember across cycles (e.g. a goal, an obstacle, a plan)."

var updateNotepadParametersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entry": map[string]any{
			"type":        "string",
			"description": "The note text to append.",
		},
	},
	"required": []string{"entry"},
}
