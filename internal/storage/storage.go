package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type Review struct {
	ID         int64
	ExternalID string
	AppID      string
	Source     string
	Title      string
	Text       string
	Rating     int
	Author     string
	Date       time.Time
	IsAnalyzed bool
	CreatedAt  time.Time
}

// AnalysisResult is everything one review's analysis pipeline produced.
// SaveAnalysisResult persists it in a single transaction.
type AnalysisResult struct {
	ReviewID  int64
	AppID     string
	Sentiment string
	Keywords  []string
	Insights  []string
}

// NewStore opens the database and initializes the schema.
//
// The pragmas ride on the DSN so they apply to every pooled connection,
// not just the one a bare Exec happens to land on. WAL plus a busy
// timeout lets concurrent analysis transactions queue on the write lock
// instead of failing immediately with SQLITE_BUSY.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath + "?_time_format=sqlite" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// BulkUpsertReviews inserts collected reviews in a single statement, silently
// skipping rows whose external_id already exists. Returns the number of rows
// actually inserted; existing reviews are never updated.
func (s *Store) BulkUpsertReviews(reviews []Review, source string) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("INSERT INTO reviews (external_id, app_id, source, title, text, rating, author, date) VALUES ")
	for i, r := range reviews {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.ExternalID, r.AppID, source, r.Title, r.Text, r.Rating, r.Author, r.Date)
	}
	b.WriteString(" ON CONFLICT(external_id) DO NOTHING")

	result, err := s.db.Exec(b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert reviews: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count inserted reviews: %w", err)
	}
	return int(inserted), nil
}

// GetReviewsByApp returns reviews for an app, optionally filtered by analyzed
// state. limit <= 0 means no limit.
func (s *Store) GetReviewsByApp(appID string, limit int, analyzed *bool) ([]Review, error) {
	query := `SELECT id, external_id, app_id, source, title, text, rating, author, date, is_analyzed, created_at
		FROM reviews WHERE app_id = ?`
	args := []any{appID}
	if analyzed != nil {
		query += " AND is_analyzed = ?"
		args = append(args, *analyzed)
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ExternalID, &r.AppID, &r.Source, &r.Title, &r.Text,
			&r.Rating, &r.Author, &r.Date, &r.IsAnalyzed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// CountReviewsByApp returns the total number of stored reviews for an app.
func (s *Store) CountReviewsByApp(appID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM reviews WHERE app_id = ?", appID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// CountAnalyzedByApp returns the number of analyzed reviews for an app.
func (s *Store) CountAnalyzedByApp(appID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM reviews WHERE app_id = ? AND is_analyzed = 1", appID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyzed reviews: %w", err)
	}
	return count, nil
}

// GetAverageRating returns the mean rating for an app rounded to two
// decimals, or 0.0 when the app has no reviews.
func (s *Store) GetAverageRating(appID string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow("SELECT AVG(rating) FROM reviews WHERE app_id = ?", appID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to get average rating: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return math.Round(avg.Float64*100) / 100, nil
}

// GetRatingsSummary returns a count of reviews per rating value.
func (s *Store) GetRatingsSummary(appID string) (map[int]int, error) {
	rows, err := s.db.Query(
		"SELECT rating, COUNT(id) FROM reviews WHERE app_id = ? GROUP BY rating", appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ratings summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[int]int)
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("failed to scan rating count: %w", err)
		}
		summary[rating] = count
	}
	return summary, rows.Err()
}

// SaveAnalysisResult persists one review's analysis in its own transaction:
// the analysis row, any insight rows, and the is_analyzed flip commit or
// roll back together, invisible to concurrently running pipelines.
func (s *Store) SaveAnalysisResult(res AnalysisResult) error {
	keywords := res.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	encoded, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin analysis transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO review_analysis (review_id, sentiment, keywords) VALUES (?, ?, ?)",
		res.ReviewID, res.Sentiment, string(encoded),
	); err != nil {
		return fmt.Errorf("failed to save review analysis: %w", err)
	}

	for _, content := range res.Insights {
		if _, err := tx.Exec(
			"INSERT INTO insights (app_id, review_id, content) VALUES (?, ?, ?)",
			res.AppID, res.ReviewID, content,
		); err != nil {
			return fmt.Errorf("failed to save insight: %w", err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE reviews SET is_analyzed = 1 WHERE id = ?", res.ReviewID,
	); err != nil {
		return fmt.Errorf("failed to mark review analyzed: %w", err)
	}

	return tx.Commit()
}

// GetSentimentsSummary returns a count of analyses per sentiment for an app.
func (s *Store) GetSentimentsSummary(appID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT ra.sentiment, COUNT(ra.id)
		FROM review_analysis ra
		JOIN reviews r ON ra.review_id = r.id
		WHERE r.app_id = ?
		GROUP BY ra.sentiment`, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sentiments summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var sentiment string
		var count int
		if err := rows.Scan(&sentiment, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment count: %w", err)
		}
		summary[sentiment] = count
	}
	return summary, rows.Err()
}

// GetTopKeywords returns the most frequent keywords across negative-sentiment
// analyses with non-empty keyword lists, ordered by frequency descending.
// Ties keep the order the keywords were first seen during aggregation.
func (s *Store) GetTopKeywords(appID string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT ra.keywords
		FROM review_analysis ra
		JOIN reviews r ON ra.review_id = r.id
		WHERE r.app_id = ? AND ra.sentiment = 'negative' AND ra.keywords != '[]'`,
		appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get keywords: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	var order []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan keywords: %w", err)
		}
		var keywords []string
		if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		for _, kw := range keywords {
			if counts[kw] == 0 {
				order = append(order, kw)
			}
			counts[kw]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order, nil
}

// GetTopInsights returns the most frequent insight contents for an app,
// ordered by count descending. Ordering between equal counts is whatever
// the GROUP BY produces; callers must not rely on it.
func (s *Store) GetTopInsights(appID string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT content
		FROM insights
		WHERE app_id = ?
		GROUP BY content
		ORDER BY COUNT(content) DESC
		LIMIT ?`, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top insights: %w", err)
	}
	defer rows.Close()

	var insights []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, content)
	}
	return insights, rows.Err()
}
