package classification

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainConfig configures a LangChainGenerator against OpenAI or any
// OpenAI-compatible endpoint.
type LangChainConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// LangChainGenerator calls an OpenAI-compatible chat model in JSON mode.
type LangChainGenerator struct {
	llm         llms.Model
	temperature float64
}

// NewLangChainGenerator creates the OpenAI client.
func NewLangChainGenerator(cfg LangChainConfig) (*LangChainGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &LangChainGenerator{llm: llm, temperature: cfg.Temperature}, nil
}

// Generate sends prompt as a single human message.
func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(g.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Content, nil
}
