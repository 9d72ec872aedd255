package collector

import (
	"context"
	"fmt"
	"time"
)

// Review is a normalized, source-agnostic review record as produced by a
// collector, before persistence.
type Review struct {
	ExternalID string
	AppID      string
	Title      string
	Text       string
	Rating     int
	Author     string
	Date       time.Time
}

// Collector pulls reviews for one app from an external store feed.
type Collector interface {
	// Collect returns up to limit reviews for the app. A failure partway
	// through paging is not fatal: whatever was accumulated is returned.
	Collect(ctx context.Context, appID string, limit int) ([]Review, error)
}

// Config holds settings shared by collector implementations.
type Config struct {
	BaseURL        string
	PageSize       int
	RateLimitDelay time.Duration
	RequestTimeout time.Duration
}

// ErrUnknown is returned by New for an unregistered source name.
var ErrUnknown = fmt.Errorf("unknown collector type")

var registry = map[string]func(Config) Collector{
	"apple_store": func(cfg Config) Collector { return NewAppleStoreCollector(cfg) },
}

// New creates a collector for the given source name.
func New(source string, cfg Config) (Collector, error) {
	ctor, ok := registry[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, source)
	}
	return ctor(cfg), nil
}

// Register adds a collector constructor under a source name. Intended for
// startup-time registration of additional sources.
func Register(source string, ctor func(Config) Collector) {
	registry[source] = ctor
}
