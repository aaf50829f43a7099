package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

// OpenAIProvider implements Provider against any OpenAI-compatible
// chat-completions endpoint (the "one alternative" vision provider
// spec.md §4.3 requires alongside Anthropic).
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider mirrors NewAnthropicProvider's constructor shape.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Analyze(ctx context.Context, req AnalyzeRequest) (Decision, error) {
	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: img.DataURI,
			},
		})
	}

	pressSchema, _ := json.Marshal(pressButtonParametersSchema)
	notepadSchema, _ := json.Marshal(updateNotepadParametersSchema)

	model := p.model
	if model == "" {
		model = openai.GPT4o
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        pressButtonToolName,
					Description: pressButtonToolDescription,
					Parameters:  json.RawMessage(pressSchema),
				},
			},
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        updateNotepadToolName,
					Description: updateNotepadToolDescription,
					Parameters:  json.RawMessage(notepadSchema),
				},
			},
		},
	})
	if err != nil {
		return Decision{Err: classifyOpenAIError(err)}, nil
	}

	return decisionFromOpenAIResponse(resp), nil
}

func decisionFromOpenAIResponse(resp openai.ChatCompletionResponse) Decision {
	if len(resp.Choices) == 0 {
		return Decision{Err: &AdapterError{Kind: ErrBadResponse, Message: "no choices returned"}}
	}
	msg := resp.Choices[0].Message

	var actions buttons.Sequence
	var notepadEntry string
	for _, call := range msg.ToolCalls {
		switch call.Function.Name {
		case pressButtonToolName:
			actions = parseToolArgs(call.Function.Arguments)
		case updateNotepadToolName:
			notepadEntry = parseNotepadEntry(call.Function.Arguments)
		}
	}
	return Decision{Text: msg.Content, Actions: actions, NotepadEntry: notepadEntry}
}

// classifyOpenAIError maps go-openai's typed *APIError onto the shared
// taxonomy.
func classifyOpenAIError(err error) *AdapterError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AdapterError{Kind: ErrAuth, Message: apiErr.Message}
		case http.StatusTooManyRequests:
			return &AdapterError{Kind: ErrRateLimit, Message: apiErr.Message}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &AdapterError{Kind: ErrTimeout, Message: apiErr.Message}
		default:
			return &AdapterError{Kind: ErrBadResponse, Message: apiErr.Message}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &AdapterError{Kind: ErrNetwork, Message: reqErr.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AdapterError{Kind: ErrTimeout, Message: err.Error()}
	}
	return &AdapterError{Kind: ErrNetwork, Message: err.Error()}
}
