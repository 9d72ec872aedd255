package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultAppleBaseURL = "https://itunes.apple.com"
	applePageSize       = 50
	appleSortBy         = "mostrecent"
)

// AppleStoreCollector pages through the App Store customer-reviews feed.
type AppleStoreCollector struct {
	baseURL        string
	pageSize       int
	rateLimitDelay time.Duration
	client         *http.Client
	policy         *bluemonday.Policy
}

// NewAppleStoreCollector creates a collector for the Apple App Store feed.
func NewAppleStoreCollector(cfg Config) *AppleStoreCollector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAppleBaseURL
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = applePageSize
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 500 * time.Millisecond
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &AppleStoreCollector{
		baseURL:        cfg.BaseURL,
		pageSize:       cfg.PageSize,
		rateLimitDelay: cfg.RateLimitDelay,
		client:         &http.Client{Timeout: cfg.RequestTimeout},
		policy:         bluemonday.StrictPolicy(),
	}
}

// Feed JSON structure: every field is wrapped in a {"label": "..."} object,
// and "entry" may be absent, a single object, or an array.
type appleLabel struct {
	Label string `json:"label"`
}

type appleEntry struct {
	ID      appleLabel  `json:"id"`
	Title   appleLabel  `json:"title"`
	Content appleLabel  `json:"content"`
	Rating  *appleLabel `json:"im:rating"`
	Updated appleLabel  `json:"updated"`
	Author  struct {
		Name appleLabel `json:"name"`
	} `json:"author"`
}

type appleFeed struct {
	Feed struct {
		Entry json.RawMessage `json:"entry"`
	} `json:"feed"`
}

// Collect fetches pages starting at 1 until a page is empty, a page is
// shorter than the nominal page size, or limit reviews have accumulated.
// A fetch or decode failure ends collection early with whatever was
// gathered so far.
func (c *AppleStoreCollector) Collect(ctx context.Context, appID string, limit int) ([]Review, error) {
	if limit <= 0 {
		return nil, nil
	}

	var reviews []Review
	page := 1
	for len(reviews) < limit {
		pageReviews, err := c.fetchPage(ctx, appID, page)
		if err != nil {
			log.Printf("reviewpulse: error fetching page %d for app %s: %v", page, appID, err)
			break
		}
		if len(pageReviews) == 0 {
			break
		}

		reviews = append(reviews, pageReviews...)

		if len(pageReviews) < c.pageSize {
			break
		}

		page++
		time.Sleep(c.rateLimitDelay)
	}

	if len(reviews) > limit {
		reviews = reviews[:limit]
	}
	return reviews, nil
}

func (c *AppleStoreCollector) reviewsURL(appID string, page int) string {
	return fmt.Sprintf("%s/rss/customerreviews/page=%d/id=%s/sortby=%s/json",
		c.baseURL, page, appID, appleSortBy)
}

func (c *AppleStoreCollector) fetchPage(ctx context.Context, appID string, page int) ([]Review, error) {
	url := c.reviewsURL(appID, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", url, err)
	}

	var feed appleFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed %s: %w", url, err)
	}

	entries := splitEntries(feed.Feed.Entry)

	var reviews []Review
	for _, raw := range entries {
		review, ok := c.parseEntry(raw, appID)
		if ok {
			reviews = append(reviews, review)
		}
	}
	return reviews, nil
}

// splitEntries normalizes the feed's "entry" field into a slice of raw
// entries regardless of whether it arrived absent, singular, or plural.
func splitEntries(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	var one map[string]json.RawMessage
	if err := json.Unmarshal(raw, &one); err == nil {
		return []json.RawMessage{raw}
	}
	return nil
}

// parseEntry converts one feed entry into a Review. Entries without a rating
// are feed metadata, entries without a date cannot be ordered, and malformed
// entries cannot be trusted; all three are skipped without failing the page.
func (c *AppleStoreCollector) parseEntry(raw json.RawMessage, appID string) (Review, bool) {
	var entry appleEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("reviewpulse: error parsing entry: %v", err)
		return Review{}, false
	}

	if entry.Rating == nil {
		return Review{}, false
	}

	rating, err := strconv.Atoi(entry.Rating.Label)
	if err != nil {
		log.Printf("reviewpulse: error parsing entry rating: %v", err)
		return Review{}, false
	}

	if entry.Updated.Label == "" {
		return Review{}, false
	}
	date, err := parseAppleDate(entry.Updated.Label)
	if err != nil {
		log.Printf("reviewpulse: error parsing entry date: %v", err)
		return Review{}, false
	}

	author := entry.Author.Name.Label
	if author == "" {
		author = "Unknown"
	}

	return Review{
		ExternalID: entry.ID.Label,
		AppID:      appID,
		Title:      c.sanitize(entry.Title.Label),
		Text:       c.sanitize(entry.Content.Label),
		Rating:     rating,
		Author:     author,
		Date:       date,
	}, true
}

// parseAppleDate parses the feed's ISO-like timestamps. The feed marks UTC
// with a literal Z suffix, which is normalized to an explicit offset first.
func parseAppleDate(s string) (time.Time, error) {
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	return time.Parse(time.RFC3339, s)
}

// sanitize strips any markup out of feed text so it never reaches the LLM
// or exports.
func (c *AppleStoreCollector) sanitize(s string) string {
	return html.UnescapeString(c.policy.Sanitize(s))
}
