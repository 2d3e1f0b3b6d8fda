package reason

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const systemPrompt = "You are the reasoning step of a phone voice agent. " +
	"Given the caller's utterance, respond with JSON containing exactly: " +
	"intent (short snake_case label), response_text (one or two conversational " +
	"sentences, plain speech, no markdown), escalate (boolean, true only when a " +
	"human must take over), and slots (object of extracted values, may be empty). " +
	"Expand numbers and abbreviations for speech."

var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent":        map[string]any{"type": "string"},
		"response_text": map[string]any{"type": "string"},
		"escalate":      map[string]any{"type": "boolean"},
		"slots":         map[string]any{"type": "object", "additionalProperties": true},
	},
	"required":             []string{"intent", "response_text", "escalate", "slots"},
	"additionalProperties": false,
}

// Engine produces a structured Result for one caller utterance. Infer returns
// an error only for transport/service failures; payload defects are repaired
// into a valid Result.
type Engine interface {
	Infer(ctx context.Context, utterance string) (Result, error)
}

// OpenAIEngine implements Engine on the OpenAI chat completions API with a
// JSON-schema response format.
type OpenAIEngine struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a reasoning engine. baseURL is optional and used by tests
// to point at a local fake.
func NewOpenAI(apiKey, model, baseURL string) *OpenAIEngine {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Infer sends the utterance to the reasoning model and repairs the structured
// reply into a Result.
func (e *OpenAIEngine) Infer(ctx context.Context, utterance string) (Result, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(utterance),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "reasoning_result",
					Schema: resultSchema,
					Strict: param.NewOpt(true),
				},
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("reasoning call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("reasoning call: no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Result{}, fmt.Errorf("reasoning call: empty content")
	}
	return Repair([]byte(content))
}
