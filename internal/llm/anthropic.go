package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

// AnthropicProvider implements Provider against Anthropic's
// tool-calling vision models.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider constructs a client scoped to a single API key
// and model; apiKey/model come from the config Snapshot at service
// start (spec.md §4.1).
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &c, model: model}
}

func (p *AnthropicProvider) Analyze(ctx context.Context, req AnalyzeRequest) (Decision, error) {
	content := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		content = append(content, anthropic.NewImageBlockBase64("image/png", rawBase64(img.DataURI)))
	}
	content = append(content, anthropic.NewTextBlock(req.Prompt))

	pressTool := anthropic.ToolParam{
		Name:        pressButtonToolName,
		Description: anthropic.String(pressButtonToolDescription),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: pressButtonParametersSchema["properties"],
		},
	}
	notepadTool := anthropic.ToolParam{
		Name:        updateNotepadToolName,
		Description: anthropic.String(updateNotepadToolDescription),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: updateNotepadParametersSchema["properties"],
		},
	}

	model := p.model
	if model == "" {
		model = "claude-opus-4-1"
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(content...),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &pressTool}, {OfTool: &notepadTool}},
	})
	if err != nil {
		return Decision{Err: classifyAnthropicError(err)}, nil
	}

	return decisionFromAnthropicMessage(msg), nil
}

// rawBase64 strips the "data:image/png;base64," prefix ImageAttachment
// carries for the OpenAI ImageURL sink — Anthropic's base64 block
// param wants the bare payload, not a data URI.
func rawBase64(dataURI string) string {
	if i := strings.Index(dataURI, ","); i >= 0 {
		return dataURI[i+1:]
	}
	return dataURI
}

func decisionFromAnthropicMessage(msg *anthropic.Message) Decision {
	var text, notepadEntry string
	var actions buttons.Sequence
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			switch b.Name {
			case pressButtonToolName:
				actions = parseToolArgs(string(b.Input))
			case updateNotepadToolName:
				notepadEntry = parseNotepadEntry(string(b.Input))
			}
		}
	}
	return Decision{Text: text, Actions: actions, NotepadEntry: notepadEntry}
}

// classifyAnthropicError maps the SDK's typed error onto the shared
// taxonomy, per the teacher's one-classifier-per-integration pattern.
func classifyAnthropicError(err error) *AdapterError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AdapterError{Kind: ErrAuth, Message: apiErr.Error()}
		case http.StatusTooManyRequests:
			return &AdapterError{Kind: ErrRateLimit, Message: apiErr.Error()}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &AdapterError{Kind: ErrTimeout, Message: apiErr.Error()}
		default:
			return &AdapterError{Kind: ErrBadResponse, Message: apiErr.Error()}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AdapterError{Kind: ErrTimeout, Message: err.Error()}
	}
	return &AdapterError{Kind: ErrNetwork, Message: err.Error()}
}
