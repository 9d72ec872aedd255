package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testReview(externalID, appID string, rating int) Review {
	return Review{
		ExternalID: externalID,
		AppID:      appID,
		Title:      "Title " + externalID,
		Text:       "Text " + externalID,
		Rating:     rating,
		Author:     "Author",
		Date:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func seedReviews(t *testing.T, store *Store, appID string, ratings ...int) []Review {
	t.Helper()
	var reviews []Review
	for i, rating := range ratings {
		reviews = append(reviews, testReview(appID+"-ext-"+string(rune('a'+i)), appID, rating))
	}
	n, err := store.BulkUpsertReviews(reviews, "apple_store")
	if err != nil {
		t.Fatalf("BulkUpsertReviews failed: %v", err)
	}
	if n != len(reviews) {
		t.Fatalf("expected %d inserted, got %d", len(reviews), n)
	}
	stored, err := store.GetReviewsByApp(appID, 0, nil)
	if err != nil {
		t.Fatalf("GetReviewsByApp failed: %v", err)
	}
	return stored
}

func TestBulkUpsertEmpty(t *testing.T) {
	store := newTestStore(t)

	n, err := store.BulkUpsertReviews(nil, "apple_store")
	if err != nil {
		t.Fatalf("BulkUpsertReviews failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted, got %d", n)
	}
}

func TestBulkUpsertIdempotent(t *testing.T) {
	store := newTestStore(t)

	reviews := []Review{
		testReview("ext-1", "100", 5),
		testReview("ext-2", "100", 3),
	}

	n, err := store.BulkUpsertReviews(reviews, "apple_store")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if n != 2 {
		t.Errorf("first upsert: expected 2 inserted, got %d", n)
	}

	n, err = store.BulkUpsertReviews(reviews, "apple_store")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second upsert: expected 0 inserted, got %d", n)
	}

	count, err := store.CountReviewsByApp("100")
	if err != nil {
		t.Fatalf("CountReviewsByApp failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored reviews, got %d", count)
	}
}

func TestBulkUpsertPartialDuplicates(t *testing.T) {
	store := newTestStore(t)

	first := []Review{testReview("ext-1", "100", 5)}
	if _, err := store.BulkUpsertReviews(first, "apple_store"); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := []Review{
		testReview("ext-1", "100", 5),
		testReview("ext-2", "100", 2),
	}
	n, err := store.BulkUpsertReviews(second, "apple_store")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 new row, got %d", n)
	}
}

func TestGetAverageRating(t *testing.T) {
	store := newTestStore(t)
	seedReviews(t, store, "100", 5, 5, 4, 3)

	avg, err := store.GetAverageRating("100")
	if err != nil {
		t.Fatalf("GetAverageRating failed: %v", err)
	}
	if avg != 4.25 {
		t.Errorf("expected average 4.25, got %v", avg)
	}
}

func TestGetAverageRatingEmpty(t *testing.T) {
	store := newTestStore(t)

	avg, err := store.GetAverageRating("nonexistent")
	if err != nil {
		t.Fatalf("GetAverageRating failed: %v", err)
	}
	if avg != 0.0 {
		t.Errorf("expected 0.0 for empty app, got %v", avg)
	}
}

func TestGetRatingsSummary(t *testing.T) {
	store := newTestStore(t)
	seedReviews(t, store, "100", 5, 5, 4, 1)

	summary, err := store.GetRatingsSummary("100")
	if err != nil {
		t.Fatalf("GetRatingsSummary failed: %v", err)
	}
	if summary[5] != 2 || summary[4] != 1 || summary[1] != 1 {
		t.Errorf("unexpected summary: %v", summary)
	}
	if _, ok := summary[3]; ok {
		t.Error("summary should not contain ratings with zero reviews")
	}
}

func TestGetReviewsByAppAnalyzedFilter(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 5, 2)

	err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID:  stored[0].ID,
		AppID:     "100",
		Sentiment: "positive",
	})
	if err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	unanalyzed := false
	pending, err := store.GetReviewsByApp("100", 0, &unanalyzed)
	if err != nil {
		t.Fatalf("GetReviewsByApp failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 unanalyzed review, got %d", len(pending))
	}
	if pending[0].ID != stored[1].ID {
		t.Errorf("wrong review left unanalyzed: got id %d", pending[0].ID)
	}

	analyzed := true
	done, err := store.GetReviewsByApp("100", 0, &analyzed)
	if err != nil {
		t.Fatalf("GetReviewsByApp failed: %v", err)
	}
	if len(done) != 1 || !done[0].IsAnalyzed {
		t.Errorf("expected 1 analyzed review, got %+v", done)
	}
}

func TestGetReviewsByAppLimit(t *testing.T) {
	store := newTestStore(t)
	seedReviews(t, store, "100", 5, 4, 3)

	reviews, err := store.GetReviewsByApp("100", 2, nil)
	if err != nil {
		t.Fatalf("GetReviewsByApp failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("expected 2 reviews, got %d", len(reviews))
	}
}

func TestSaveAnalysisResultWithInsights(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 1)

	err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID:  stored[0].ID,
		AppID:     "100",
		Sentiment: "negative",
		Keywords:  []string{"crash", "login"},
		Insights:  []string{"App crashes at login", "Users cannot sign in"},
	})
	if err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	sentiments, err := store.GetSentimentsSummary("100")
	if err != nil {
		t.Fatalf("GetSentimentsSummary failed: %v", err)
	}
	if sentiments["negative"] != 1 {
		t.Errorf("expected 1 negative, got %v", sentiments)
	}

	insights, err := store.GetTopInsights("100", 10)
	if err != nil {
		t.Fatalf("GetTopInsights failed: %v", err)
	}
	if len(insights) != 2 {
		t.Errorf("expected 2 insights, got %d", len(insights))
	}
}

func TestSaveAnalysisResultDuplicateFails(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 3)

	res := AnalysisResult{ReviewID: stored[0].ID, AppID: "100", Sentiment: "neutral"}
	if err := store.SaveAnalysisResult(res); err != nil {
		t.Fatalf("first SaveAnalysisResult failed: %v", err)
	}
	if err := store.SaveAnalysisResult(res); err == nil {
		t.Error("expected unique constraint error on second analysis for same review")
	}

	// The duplicate attempt must not have added insight rows or a second analysis.
	sentiments, err := store.GetSentimentsSummary("100")
	if err != nil {
		t.Fatalf("GetSentimentsSummary failed: %v", err)
	}
	if sentiments["neutral"] != 1 {
		t.Errorf("expected exactly 1 analysis row, got %v", sentiments)
	}
}

func TestGetTopKeywordsRanking(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 1, 2, 5)

	// Two negative analyses with keywords, one positive with keywords that
	// must be ignored.
	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[0].ID, AppID: "100", Sentiment: "negative",
		Keywords: []string{"a", "b"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}
	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[1].ID, AppID: "100", Sentiment: "negative",
		Keywords: []string{"a"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}
	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[2].ID, AppID: "100", Sentiment: "positive",
		Keywords: []string{"z"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	top, err := store.GetTopKeywords("100", 1)
	if err != nil {
		t.Fatalf("GetTopKeywords failed: %v", err)
	}
	if len(top) != 1 || top[0] != "a" {
		t.Errorf("expected [a], got %v", top)
	}

	all, err := store.GetTopKeywords("100", 10)
	if err != nil {
		t.Fatalf("GetTopKeywords failed: %v", err)
	}
	if len(all) != 2 || all[0] != "a" || all[1] != "b" {
		t.Errorf("expected [a b], got %v", all)
	}
}

func TestGetTopKeywordsTieBreakFirstSeen(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 1)

	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[0].ID, AppID: "100", Sentiment: "negative",
		Keywords: []string{"first", "second"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	top, err := store.GetTopKeywords("100", 10)
	if err != nil {
		t.Fatalf("GetTopKeywords failed: %v", err)
	}
	if len(top) != 2 || top[0] != "first" || top[1] != "second" {
		t.Errorf("ties should keep first-seen order, got %v", top)
	}
}

func TestGetTopInsightsRanking(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 1, 1)

	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[0].ID, AppID: "100", Sentiment: "negative",
		Insights: []string{"slow sync", "crash on start"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}
	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[1].ID, AppID: "100", Sentiment: "negative",
		Insights: []string{"crash on start"},
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	top, err := store.GetTopInsights("100", 1)
	if err != nil {
		t.Fatalf("GetTopInsights failed: %v", err)
	}
	if len(top) != 1 || top[0] != "crash on start" {
		t.Errorf("expected [crash on start], got %v", top)
	}
}

func TestCountAnalyzedByApp(t *testing.T) {
	store := newTestStore(t)
	stored := seedReviews(t, store, "100", 4, 5)

	count, err := store.CountAnalyzedByApp("100")
	if err != nil {
		t.Fatalf("CountAnalyzedByApp failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 analyzed, got %d", count)
	}

	if err := store.SaveAnalysisResult(AnalysisResult{
		ReviewID: stored[0].ID, AppID: "100", Sentiment: "positive",
	}); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	count, err = store.CountAnalyzedByApp("100")
	if err != nil {
		t.Fatalf("CountAnalyzedByApp failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 analyzed, got %d", count)
	}
}

func TestSaveAnalysisResultConcurrentBatch(t *testing.T) {
	store := newTestStore(t)

	const batch = 50
	reviews := make([]Review, batch)
	for i := range reviews {
		reviews[i] = testReview(fmt.Sprintf("ext-%d", i), "500", 1)
	}
	if _, err := store.BulkUpsertReviews(reviews, "apple_store"); err != nil {
		t.Fatalf("BulkUpsertReviews failed: %v", err)
	}
	stored, err := store.GetReviewsByApp("500", 0, nil)
	if err != nil {
		t.Fatalf("GetReviewsByApp failed: %v", err)
	}
	if len(stored) != batch {
		t.Fatalf("expected %d stored reviews, got %d", batch, len(stored))
	}

	// One write transaction per review, all committing at once. Every one
	// must succeed: contending transactions wait on the write lock, they
	// do not fail each other.
	errs := make(chan error, len(stored))
	var wg sync.WaitGroup
	for _, r := range stored {
		wg.Add(1)
		go func(r Review) {
			defer wg.Done()
			errs <- store.SaveAnalysisResult(AnalysisResult{
				ReviewID:  r.ID,
				AppID:     r.AppID,
				Sentiment: "negative",
				Keywords:  []string{"crash"},
				Insights:  []string{"fix startup crash"},
			})
		}(r)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
			t.Logf("SaveAnalysisResult: %v", err)
		}
	}
	if failed > 0 {
		t.Fatalf("%d/%d concurrent saves failed", failed, batch)
	}

	analyzed, err := store.CountAnalyzedByApp("500")
	if err != nil {
		t.Fatalf("CountAnalyzedByApp failed: %v", err)
	}
	if analyzed != batch {
		t.Errorf("expected %d analyzed, got %d", batch, analyzed)
	}
}
