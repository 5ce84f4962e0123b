package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// DefaultPrompt asks for an objective, chronological summary of one clip.
const DefaultPrompt = "You are a helpful police assistant. Summarize the key events in this video clip for an incident report. " +
	"Be objective and concise. List the events chronologically."

var ErrEmptyResponse = errors.New("analysis returned an empty response")

// Capability turns a prompt and the raw bytes of a segment into text.
type Capability interface {
	Analyze(ctx context.Context, prompt string, data []byte) (string, error)
}

type CapabilityFunc func(ctx context.Context, prompt string, data []byte) (string, error)

func (f CapabilityFunc) Analyze(ctx context.Context, prompt string, data []byte) (string, error) {
	return f(ctx, prompt, data)
}

// LLMCapability sends the segment as an inline binary part next to the prompt.
type LLMCapability struct {
	llm       llms.Model
	mimeType  string
	modelName string
}

func NewLLMCapability(llm llms.Model, modelName, mimeType string) *LLMCapability {
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return &LLMCapability{llm: llm, modelName: modelName, mimeType: mimeType}
}

// NewGeminiCapability builds a capability backed by Google's Gemini models.
func NewGeminiCapability(ctx context.Context, apiKey, modelName, mimeType string) (*LLMCapability, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key required")
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai model: %w", err)
	}

	return NewLLMCapability(llm, modelName, mimeType), nil
}

func (c *LLMCapability) Analyze(ctx context.Context, prompt string, data []byte) (string, error) {
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(c.mimeType, data),
				llms.TextPart(prompt),
			},
		},
	}

	response, err := c.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate content with %s: %w", c.modelName, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices: %w", ErrEmptyResponse)
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Model returns the LLM model name.
func (c *LLMCapability) Model() string {
	return c.modelName
}
