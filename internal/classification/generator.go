package classification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/digitaltwin/internal/config"
)

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Generator sends one prompt to a text-generation model and returns the raw
// reply. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// NewGenerator builds the generator for the configured provider, paced to
// cfg.RequestsPerMinute when that is positive.
func NewGenerator(ctx context.Context, cfg config.ClassifierConfig) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		gen, err = NewGeminiGenerator(ctx, GeminiConfig{
			APIKey:      cfg.APIKey.Value(),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	case config.ProviderOpenAI:
		gen, err = NewLangChainGenerator(LangChainConfig{
			APIKey:      cfg.APIKey.Value(),
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Paced(gen, cfg.RequestsPerMinute), nil
}

// Paced limits gen to rpm calls per minute. Callers wait for a slot or
// until ctx is done. A non-positive rpm returns gen unchanged.
func Paced(gen Generator, rpm int) Generator {
	if rpm <= 0 {
		return gen
	}
	return &pacedGenerator{
		next:    gen,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

type pacedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

func (p *pacedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for generator slot: %w", err)
	}
	return p.next.Generate(ctx, prompt)
}
