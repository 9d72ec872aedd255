package reviewpulse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"reviewpulse/internal/collector"
	"reviewpulse/internal/llm"
	"reviewpulse/internal/storage"
)

// ErrNotFound reports that no reviews (or no analyzed reviews) exist for
// the requested app.
var ErrNotFound = errors.New("no reviews found")

// topLimit is how many keywords and insights AppMetrics returns.
const topLimit = 10

// Engine wires the collector, store and LLM service into the review
// pipeline: collect, analyze, aggregate.
type Engine struct {
	store        *storage.Store
	llm          llm.Service
	collectorCfg collector.Config
}

// NewEngine opens the database and builds the configured LLM service.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "./reviewpulse.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	svc, err := llm.New(cfg.LLMProvider, llm.Config{
		Model:         cfg.LLMModel,
		APIKey:        cfg.LLMAPIKey,
		Endpoint:      cfg.LLMEndpoint,
		OllamaBaseURL: cfg.OllamaBaseURL,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building LLM service: %w", err)
	}

	return &Engine{
		store: store,
		llm:   svc,
		collectorCfg: collector.Config{
			BaseURL:        cfg.FeedBaseURL,
			PageSize:       cfg.PageSize,
			RateLimitDelay: cfg.RateLimitDelay,
			RequestTimeout: cfg.RequestTimeout,
		},
	}, nil
}

// Close releases the engine's database handle.
func (e *Engine) Close() error {
	return e.store.Close()
}

// CollectReviews fetches up to limit reviews for appID from the named
// source and persists the ones not already stored.
func (e *Engine) CollectReviews(ctx context.Context, source, appID string, limit int) (*CollectResult, error) {
	col, err := collector.New(source, e.collectorCfg)
	if err != nil {
		return nil, err
	}

	collected, err := col.Collect(ctx, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("collecting reviews for app %s: %w", appID, err)
	}

	rows := make([]storage.Review, len(collected))
	for i, r := range collected {
		rows[i] = storage.Review{
			ExternalID: r.ExternalID,
			AppID:      r.AppID,
			Title:      r.Title,
			Text:       r.Text,
			Rating:     r.Rating,
			Author:     r.Author,
			Date:       r.Date,
		}
	}
	saved, err := e.store.BulkUpsertReviews(rows, source)
	if err != nil {
		return nil, fmt.Errorf("saving reviews for app %s: %w", appID, err)
	}

	result := &CollectResult{
		Source:         source,
		AppID:          appID,
		TotalCollected: len(collected),
		NewSaved:       saved,
		Reviews:        make([]CollectedReview, len(collected)),
	}
	for i, r := range collected {
		result.Reviews[i] = CollectedReview{
			ID:     r.ExternalID,
			Title:  r.Title,
			Text:   r.Text,
			Rating: r.Rating,
			Author: r.Author,
			Date:   r.Date,
		}
	}
	return result, nil
}

// AnalyzeReviews runs the LLM pipeline over every stored review of appID
// that has not been analyzed yet. Reviews are analyzed independently: a
// failure on one review is logged and does not stop the others. Returns
// ErrNotFound when no reviews exist for the app.
func (e *Engine) AnalyzeReviews(ctx context.Context, appID string) (*AnalyzeResult, error) {
	total, err := e.store.CountReviewsByApp(appID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}

	notAnalyzed := false
	pending, err := e.store.GetReviewsByApp(appID, 0, &notAnalyzed)
	if err != nil {
		return nil, err
	}

	// Once launched the batch runs to completion: a caller disconnect must
	// not abort in-flight pipelines mid-commit.
	batchCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, review := range pending {
		wg.Add(1)
		go func(r storage.Review) {
			defer wg.Done()
			if err := e.analyzeOne(batchCtx, appID, r); err != nil {
				log.Printf("reviewpulse: analysis failed for review %d: %v", r.ID, err)
			}
		}(review)
	}
	wg.Wait()

	return &AnalyzeResult{
		AppID:        appID,
		TotalReviews: total,
		New:          len(pending),
		Status:       StatusCompleted,
	}, nil
}

// analyzeOne classifies one review and, when it is negative, extracts
// keywords and insights before persisting the result as a unit.
func (e *Engine) analyzeOne(ctx context.Context, appID string, r storage.Review) error {
	sentiment, err := e.llm.AnalyzeSentiment(ctx, r.Text, r.Rating)
	if err != nil {
		return fmt.Errorf("sentiment: %w", err)
	}

	var keywords, insights []string
	if sentiment == llm.SentimentNegative {
		keywords, err = e.llm.ExtractKeywords(ctx, r.Text)
		if err != nil {
			return fmt.Errorf("keywords: %w", err)
		}
		insights, err = e.llm.GenerateInsights(ctx, r.Text, r.Rating)
		if err != nil {
			return fmt.Errorf("insights: %w", err)
		}
	}

	return e.store.SaveAnalysisResult(storage.AnalysisResult{
		ReviewID:  r.ID,
		AppID:     appID,
		Sentiment: sentiment,
		Keywords:  keywords,
		Insights:  insights,
	})
}

// AppMetrics aggregates ratings, sentiments, top keywords and top
// insights for appID. Returns ErrNotFound when the app has no analyzed
// reviews.
func (e *Engine) AppMetrics(appID string) (*AppMetrics, error) {
	analyzed, err := e.store.CountAnalyzedByApp(appID)
	if err != nil {
		return nil, err
	}
	if analyzed == 0 {
		return nil, fmt.Errorf("app %s has no analyzed reviews: %w", appID, ErrNotFound)
	}

	avg, err := e.store.GetAverageRating(appID)
	if err != nil {
		return nil, err
	}
	ratings, err := e.store.GetRatingsSummary(appID)
	if err != nil {
		return nil, err
	}
	sentiments, err := e.store.GetSentimentsSummary(appID)
	if err != nil {
		return nil, err
	}
	keywords, err := e.store.GetTopKeywords(appID, topLimit)
	if err != nil {
		return nil, err
	}
	insights, err := e.store.GetTopInsights(appID, topLimit)
	if err != nil {
		return nil, err
	}

	return &AppMetrics{
		AverageRating:     avg,
		RatingsSummary:    ratings,
		SentimentsSummary: sentiments,
		TopKeywords:       keywords,
		TopInsights:       insights,
	}, nil
}

// ExportReviews returns every stored review for appID. Returns
// ErrNotFound when none exist.
func (e *Engine) ExportReviews(appID string) ([]Review, error) {
	rows, err := e.store.GetReviewsByApp(appID, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}

	reviews := make([]Review, len(rows))
	for i, r := range rows {
		reviews[i] = reviewFromStorage(r)
	}
	return reviews, nil
}

func reviewFromStorage(r storage.Review) Review {
	return Review{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		AppID:      r.AppID,
		Source:     r.Source,
		Title:      r.Title,
		Text:       r.Text,
		Rating:     r.Rating,
		Author:     r.Author,
		Date:       r.Date,
		IsAnalyzed: r.IsAnalyzed,
		CreatedAt:  r.CreatedAt,
	}
}
