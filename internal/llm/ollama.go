package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3"

// OllamaService runs the same three operations against a local Ollama
// instance, for setups without an API-key provider.
type OllamaService struct {
	client *api.Client
	model  string
	gate   *gate
}

// NewOllamaService creates an Ollama-backed service. Environment-based
// client configuration wins; the configured base URL is the fallback.
func NewOllamaService(cfg Config) (*OllamaService, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		parsedURL, parseErr := url.Parse(cfg.OllamaBaseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid ollama base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, nil)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaService{
		client: client,
		model:  model,
		gate:   newGate(cfg.MaxConcurrent),
	}, nil
}

func (s *OllamaService) generate(ctx context.Context, system, prompt string) (string, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire provider slot: %w", err)
	}
	defer s.gate.release()

	req := &api.GenerateRequest{
		Model:  s.model,
		System: system,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": generationTemperature,
		},
	}

	var fullResponse strings.Builder
	err := s.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return strings.TrimSpace(fullResponse.String()), nil
}

func (s *OllamaService) AnalyzeSentiment(ctx context.Context, text string, rating int) (string, error) {
	prompt, err := renderPrompt(sentimentPrompt, promptData{Text: text, Rating: rating})
	if err != nil {
		return "", err
	}
	response, err := s.generate(ctx, analystSystemMessage, prompt)
	if err != nil {
		return "", fmt.Errorf("sentiment analysis failed: %w", err)
	}
	return classifySentiment(response), nil
}

func (s *OllamaService) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	prompt, err := renderPrompt(keywordsPrompt, promptData{Text: text})
	if err != nil {
		return nil, err
	}
	response, err := s.generate(ctx, analystSystemMessage, prompt)
	if err != nil {
		return nil, fmt.Errorf("keyword extraction failed: %w", err)
	}
	return parseList(response), nil
}

func (s *OllamaService) GenerateInsights(ctx context.Context, text string, rating int) ([]string, error) {
	prompt, err := renderPrompt(insightsPrompt, promptData{Text: text, Rating: rating})
	if err != nil {
		return nil, err
	}
	response, err := s.generate(ctx, insightsSystemMessage, prompt)
	if err != nil {
		return nil, fmt.Errorf("insight generation failed: %w", err)
	}
	return parseList(response), nil
}
