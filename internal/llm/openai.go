package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel    = "gpt-4o-mini"
)

// OpenAIService talks to an OpenAI-compatible chat-completions API.
type OpenAIService struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	gate     *gate
}

// NewOpenAIService builds a service from configuration.
func NewOpenAIService(cfg Config) *OpenAIService {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAIService{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		gate:     newGate(cfg.MaxConcurrent),
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chat posts one completion request. The admission gate is held for the
// duration of the call.
func (s *OpenAIService) chat(ctx context.Context, system, prompt string) (string, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire provider slot: %w", err)
	}
	defer s.gate.release()

	body, err := json.Marshal(map[string]any{
		"model":       s.model,
		"temperature": generationTemperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// AnalyzeSentiment classifies review text + rating into a sentiment label.
func (s *OpenAIService) AnalyzeSentiment(ctx context.Context, text string, rating int) (string, error) {
	prompt, err := renderPrompt(sentimentPrompt, promptData{Text: text, Rating: rating})
	if err != nil {
		return "", err
	}
	response, err := s.chat(ctx, analystSystemMessage, prompt)
	if err != nil {
		return "", fmt.Errorf("sentiment analysis failed: %w", err)
	}
	return classifySentiment(response), nil
}

// ExtractKeywords asks for problem keywords. An undecodable response is an
// empty list, not an error.
func (s *OpenAIService) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	prompt, err := renderPrompt(keywordsPrompt, promptData{Text: text})
	if err != nil {
		return nil, err
	}
	response, err := s.chat(ctx, analystSystemMessage, prompt)
	if err != nil {
		return nil, fmt.Errorf("keyword extraction failed: %w", err)
	}
	return parseList(response), nil
}

// GenerateInsights asks for actionable insights. An undecodable response is
// an empty list, not an error.
func (s *OpenAIService) GenerateInsights(ctx context.Context, text string, rating int) ([]string, error) {
	prompt, err := renderPrompt(insightsPrompt, promptData{Text: text, Rating: rating})
	if err != nil {
		return nil, err
	}
	response, err := s.chat(ctx, insightsSystemMessage, prompt)
	if err != nil {
		return nil, fmt.Errorf("insight generation failed: %w", err)
	}
	return parseList(response), nil
}
