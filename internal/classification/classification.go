// Package classification turns free-text brain dumps into structured items
// by prompting a text-generation model and parsing its JSON reply.
package classification

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/digitaltwin/internal/classification"

// ClassifiedItem is an item proposed by the model, not yet persisted.
// Deadline is kept as the model returned it.
type ClassifiedItem struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Subcategory *string `json:"subcategory"`
	LifeArea    *string `json:"life_area"`
	Deadline    *string `json:"deadline"`
	Priority    int     `json:"priority"`
	Description *string `json:"description"`
}

// Profile is the slice of a user profile the prompt needs.
type Profile struct {
	Goals       map[string]string
	Personality map[string]string
	LifeAreas   []string
}

// Result is the outcome of one classification. Items is never nil.
// A failed call carries the cause in Err and has no items.
type Result struct {
	Items []ClassifiedItem
	Err   error
}

// OK reports whether the model was reached and its reply parsed.
func (r Result) OK() bool { return r.Err == nil }

// Failed reports whether the call or the parse failed.
func (r Result) Failed() bool { return r.Err != nil }

// Engine classifies user input. It is safe for concurrent use.
type Engine struct {
	gen     Generator
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
	timeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the collectors the engine records into.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used for classification spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the clock used for the prompt date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTimeout bounds each generator call. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an engine over gen.
func NewEngine(gen Generator, opts ...Option) *Engine {
	e := &Engine{
		gen:    gen,
		logger: logging.NewNop(),
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify prompts the model with input and profile and returns the parsed
// items. Failures are logged and reported in Result.Err, never returned as
// a separate error.
func (e *Engine) Classify(ctx context.Context, input string, profile Profile) Result {
	ctx, span := e.tracer.Start(ctx, "classification.classify")
	defer span.End()

	start := time.Now()
	items, err := e.classify(ctx, input, profile)
	elapsed := time.Since(start)

	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		e.logger.Warn(ctx, "classification failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
	case len(items) == 0:
		outcome = outcomeEmpty
	}

	span.SetAttributes(
		attribute.String("classification.outcome", outcome),
		attribute.Int("classification.items", len(items)),
	)
	e.metrics.observe(outcome, elapsed)

	if err != nil {
		return Result{Items: []ClassifiedItem{}, Err: err}
	}
	e.logger.Debug(ctx, "classified input",
		zap.Int("items", len(items)),
		zap.Duration("elapsed", elapsed),
	)
	return Result{Items: items}
}

func (e *Engine) classify(ctx context.Context, input string, profile Profile) ([]ClassifiedItem, error) {
	if e.gen == nil {
		return nil, errors.New("no generator configured")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(input, profile, e.now())
	e.logger.Trace(ctx, "classification prompt", zap.String("prompt", prompt))

	reply, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	e.logger.Trace(ctx, "classification reply", zap.String("reply", reply))

	return ParseItems(reply)
}
