package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func label(s string) map[string]string {
	return map[string]string{"label": s}
}

func reviewEntry(id string, rating int) map[string]any {
	return map[string]any{
		"id":        label(id),
		"title":     label("Title " + id),
		"content":   label("Text " + id),
		"im:rating": label(fmt.Sprintf("%d", rating)),
		"author":    map[string]any{"name": label("Reviewer")},
		"updated":   label("2026-02-10T08:30:00-07:00"),
	}
}

// metadataEntry mimics the feed's leading app-metadata entry, which carries
// no rating field.
func metadataEntry() map[string]any {
	return map[string]any{
		"id":    label("app-meta"),
		"title": label("Some App"),
	}
}

func feedBody(t *testing.T, entry any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{"feed": map[string]any{"entry": entry}})
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return body
}

// feedServer serves canned pages keyed by page number and records requests.
func feedServer(t *testing.T, pages map[int]any) (*httptest.Server, *[]int) {
	t.Helper()
	var requested []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var page int
		for _, part := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(part, "page=") {
				fmt.Sscanf(part, "page=%d", &page)
			}
		}
		requested = append(requested, page)

		entries, ok := pages[page]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(feedBody(t, entries))
	}))
	t.Cleanup(srv.Close)
	return srv, &requested
}

func newTestCollector(baseURL string, pageSize int) *AppleStoreCollector {
	return NewAppleStoreCollector(Config{
		BaseURL:        baseURL,
		PageSize:       pageSize,
		RateLimitDelay: time.Millisecond,
	})
}

func TestCollectPaginatesAndTruncates(t *testing.T) {
	srv, requested := feedServer(t, map[int]any{
		1: []any{reviewEntry("r1", 5), reviewEntry("r2", 4)},
		2: []any{reviewEntry("r3", 3), reviewEntry("r4", 2)},
	})

	c := newTestCollector(srv.URL, 2)
	reviews, err := c.Collect(context.Background(), "100", 3)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(reviews))
	}
	if reviews[2].ExternalID != "r3" {
		t.Errorf("truncation kept wrong reviews: %+v", reviews)
	}
	if len(*requested) != 2 {
		t.Errorf("expected 2 page fetches, got %v", *requested)
	}
}

func TestCollectStopsOnShortPage(t *testing.T) {
	srv, requested := feedServer(t, map[int]any{
		1: []any{reviewEntry("r1", 5)},
	})

	c := newTestCollector(srv.URL, 2)
	reviews, err := c.Collect(context.Background(), "100", 10)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
	if len(*requested) != 1 {
		t.Errorf("short page should stop paging, requests: %v", *requested)
	}
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	srv, _ := feedServer(t, map[int]any{
		1: []any{},
	})

	c := newTestCollector(srv.URL, 2)
	reviews, err := c.Collect(context.Background(), "100", 10)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 0 {
		t.Errorf("expected no reviews, got %d", len(reviews))
	}
}

func TestCollectReturnsAccumulatedOnFetchError(t *testing.T) {
	// Page 2 is not configured, so the server answers it with a 500.
	srv, _ := feedServer(t, map[int]any{
		1: []any{reviewEntry("r1", 5), reviewEntry("r2", 1)},
	})

	c := newTestCollector(srv.URL, 2)
	reviews, err := c.Collect(context.Background(), "100", 10)
	if err != nil {
		t.Fatalf("page error must not fail collection: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("expected the 2 accumulated reviews, got %d", len(reviews))
	}
}

func TestCollectSkipsMetadataAndUndatedEntries(t *testing.T) {
	undated := reviewEntry("r2", 4)
	undated["updated"] = label("")

	srv, _ := feedServer(t, map[int]any{
		1: []any{metadataEntry(), reviewEntry("r1", 5), undated},
	})

	c := newTestCollector(srv.URL, 50)
	reviews, err := c.Collect(context.Background(), "100", 10)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected 1 parseable review, got %d", len(reviews))
	}
	if reviews[0].ExternalID != "r1" {
		t.Errorf("wrong review survived: %+v", reviews[0])
	}
}

func TestCollectSingularEntryObject(t *testing.T) {
	srv, _ := feedServer(t, map[int]any{
		1: reviewEntry("only", 3),
	})

	c := newTestCollector(srv.URL, 50)
	reviews, err := c.Collect(context.Background(), "100", 10)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 1 || reviews[0].ExternalID != "only" {
		t.Errorf("singular entry object not handled: %+v", reviews)
	}
}

func TestCollectZeroLimit(t *testing.T) {
	c := newTestCollector("http://localhost:1", 50)
	reviews, err := c.Collect(context.Background(), "100", 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(reviews) != 0 {
		t.Errorf("limit 0 must return no reviews, got %d", len(reviews))
	}
}

func TestParseAppleDateNormalizesUTCMarker(t *testing.T) {
	parsed, err := parseAppleDate("2026-02-10T15:04:05Z")
	if err != nil {
		t.Fatalf("parseAppleDate failed: %v", err)
	}
	want := time.Date(2026, 2, 10, 15, 4, 5, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Errorf("got %v, want %v", parsed, want)
	}

	_, offset := parsed.Zone()
	if offset != 0 {
		t.Errorf("expected explicit UTC offset, got %d", offset)
	}
}

func TestParseEntryStripsMarkup(t *testing.T) {
	entry := reviewEntry("r1", 2)
	entry["content"] = label(`Broken <script>alert(1)</script> & <b>slow</b>`)
	raw, _ := json.Marshal(entry)

	c := newTestCollector("http://localhost:1", 50)
	review, ok := c.parseEntry(raw, "100")
	if !ok {
		t.Fatal("entry should parse")
	}
	if strings.Contains(review.Text, "<") || strings.Contains(review.Text, "script") {
		t.Errorf("markup not stripped: %q", review.Text)
	}
	if !strings.Contains(review.Text, "&") {
		t.Errorf("plain text mangled: %q", review.Text)
	}
}

func TestNewUnknownCollector(t *testing.T) {
	_, err := New("play_store", Config{})
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
}

func TestNewAppleStore(t *testing.T) {
	c, err := New("apple_store", Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*AppleStoreCollector); !ok {
		t.Errorf("expected AppleStoreCollector, got %T", c)
	}
}
