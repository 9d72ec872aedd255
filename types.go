package reviewpulse

import "time"

// EngineConfig configures the review analysis engine.
type EngineConfig struct {
	DBPath string

	// Collector settings
	FeedBaseURL    string
	PageSize       int
	RateLimitDelay time.Duration
	RequestTimeout time.Duration

	// LLM provider settings
	LLMProvider   string // "openai" (default) or "ollama"
	LLMModel      string
	LLMAPIKey     string
	LLMEndpoint   string
	OllamaBaseURL string
	MaxConcurrent int // bound on simultaneous provider calls
}

// Review is a persisted app-store review.
type Review struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	AppID      string    `json:"app_id"`
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	Author     string    `json:"author"`
	Date       time.Time `json:"date"`
	IsAnalyzed bool      `json:"is_analyzed"`
	CreatedAt  time.Time `json:"created_at"`
}

// CollectedReview is one review as returned by a collection run, keyed by
// its source-assigned id.
type CollectedReview struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Text   string    `json:"text"`
	Rating int       `json:"rating"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
}

// CollectResult summarizes one collection run.
type CollectResult struct {
	Source         string            `json:"source"`
	AppID          string            `json:"app_id"`
	TotalCollected int               `json:"total_collected"`
	NewSaved       int               `json:"new_saved"`
	Reviews        []CollectedReview `json:"reviews"`
}

// Analysis batch statuses.
const (
	StatusCompleted  = "completed"
	StatusProcessing = "processing"
)

// AnalyzeResult summarizes one analysis batch.
type AnalyzeResult struct {
	AppID        string `json:"app_id"`
	TotalReviews int    `json:"total_reviews"`
	New          int    `json:"new"`
	Status       string `json:"status"`
}

// AppMetrics is the aggregated view over an app's reviews and analyses.
type AppMetrics struct {
	AverageRating     float64        `json:"average_rating"`
	RatingsSummary    map[int]int    `json:"ratings_summary"`
	SentimentsSummary map[string]int `json:"sentiments_summary"`
	TopKeywords       []string       `json:"top_keywords"`
	TopInsights       []string       `json:"top_insights"`
}
