package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voyplan/memory-backend/internal/logger"
)

// Extractor runs an LLM over conversation text and returns a flat JSON object
// of extracted fields. Used by the preference worker behind a feature flag.
type Extractor interface {
	ExtractJSON(ctx context.Context, prompt string) (map[string]any, error)
}

type extractor struct {
	log    *logger.Logger
	client *openai.Client
	model  string
}

func NewExtractor(log *logger.Logger, opts Options) (Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	model := strings.TrimSpace(opts.ExtractModel)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &extractor{
		log:    log.With("service", "OpenAIExtractor"),
		client: newOpenAIClient(opts),
		model:  model,
	}, nil
}

func (x *extractor) ExtractJSON(ctx context.Context, prompt string) (map[string]any, error) {
	resp, err := x.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       x.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	out, ok := CarveJSONObject(resp.Choices[0].Message.Content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in completion output")
	}
	return out, nil
}

// CarveJSONObject pulls the outermost {...} span out of model output and
// decodes it. Models often wrap JSON in prose or code fences.
func CarveJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}
