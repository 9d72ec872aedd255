package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Sentiment labels, as persisted and aggregated.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Service is the capability set the analysis pipeline needs from an LLM
// provider. Text generation itself is a black box; the service only shapes
// prompts and interprets responses.
type Service interface {
	AnalyzeSentiment(ctx context.Context, text string, rating int) (string, error)
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
	GenerateInsights(ctx context.Context, text string, rating int) ([]string, error)
}

// Config holds provider settings.
type Config struct {
	Model         string
	APIKey        string
	Endpoint      string
	OllamaBaseURL string
	MaxConcurrent int
}

// ErrUnknown is returned by New for an unregistered provider name.
var ErrUnknown = errors.New("unknown LLM service type")

var registry = map[string]func(Config) (Service, error){
	"openai": func(cfg Config) (Service, error) { return NewOpenAIService(cfg), nil },
	"ollama": func(cfg Config) (Service, error) { return NewOllamaService(cfg) },
}

// New creates an LLM service for the given provider name.
func New(provider string, cfg Config) (Service, error) {
	ctor, ok := registry[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, provider)
	}
	return ctor(cfg)
}

// Register adds a provider constructor under a name.
func Register(provider string, ctor func(Config) (Service, error)) {
	registry[provider] = ctor
}

const (
	defaultMaxConcurrent  = 50
	generationTemperature = 0.3
)

// gate bounds simultaneous outbound provider calls. One gate is owned by the
// service instance, so the bound holds across every pipeline of every batch.
type gate struct {
	sem *semaphore.Weighted
}

func newGate(n int) *gate {
	if n <= 0 {
		n = defaultMaxConcurrent
	}
	return &gate{sem: semaphore.NewWeighted(int64(n))}
}

func (g *gate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *gate) release() {
	g.sem.Release(1)
}

// classifySentiment maps a free-form provider response to a sentiment label.
// "positive" is checked before "negative" on purpose: a response containing
// both words classifies as positive.
func classifySentiment(response string) string {
	lower := strings.ToLower(response)
	switch {
	case strings.Contains(lower, SentimentPositive):
		return SentimentPositive
	case strings.Contains(lower, SentimentNegative):
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// parseList decodes a provider response expected to be a JSON string array,
// optionally wrapped in a fenced code block. Anything undecodable yields an
// empty list rather than an error.
func parseList(response string) []string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.ReplaceAll(cleaned, "```json", "")
		cleaned = strings.ReplaceAll(cleaned, "```", "")
		cleaned = strings.TrimSpace(cleaned)
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.ReplaceAll(cleaned, "```", "")
		cleaned = strings.TrimSpace(cleaned)
	}

	var items []string
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil
	}
	return items
}
