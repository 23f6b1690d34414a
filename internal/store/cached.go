package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stockcsv/internal/market"
	"stockcsv/internal/provider"
)

// coverageThreshold is the minimum ratio of cached dates to expected
// weekdays for a range to be served from the cache without refetching.
const coverageThreshold = 0.8

// CachedProvider wraps a Provider with a sqlite-backed cache. Ranges the
// cache already covers well are served locally; anything else is fetched
// upstream and persisted first. Upstream errors propagate; the cache never
// falls back to partial data.
type CachedProvider struct {
	upstream provider.Provider
	bars     *BarRepository
}

func NewCachedProvider(upstream provider.Provider, bars *BarRepository) *CachedProvider {
	return &CachedProvider{upstream: upstream, bars: bars}
}

// Source returns the upstream provider identifier.
func (c *CachedProvider) Source() string { return c.upstream.Source() }

func (c *CachedProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	// Invalid inputs go straight upstream so its validation error is the one
	// callers see.
	if symbol == "" || from.IsZero() || (!to.IsZero() && from.After(to)) {
		return c.upstream.Fetch(ctx, symbol, from, to)
	}
	if to.IsZero() {
		to = time.Now()
	}

	source := c.upstream.Source()

	existing, err := c.bars.ExistingDates(ctx, source, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("check existing dates: %w", err)
	}

	// Rough heuristic: compare cached dates against expected business days
	// (weekdays) in the range.
	totalDays := countWeekdays(from, to)
	coverage := float64(len(existing)) / float64(max(totalDays, 1))

	if len(existing) > 0 && coverage > coverageThreshold {
		return c.bars.ListBars(ctx, source, symbol, from, to)
	}

	fetched, err := c.upstream.Fetch(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	// Filter out already-cached dates before saving.
	newBars := make([]market.Bar, 0, len(fetched))
	for _, b := range fetched {
		if existing[b.Date] {
			continue
		}
		newBars = append(newBars, b)
	}

	n, err := c.bars.SaveBars(ctx, source, newBars)
	if err != nil {
		return nil, fmt.Errorf("save bars: %w", err)
	}
	slog.Info("cached bars", "source", source, "symbol", symbol, "new", n, "total_fetched", len(fetched))

	return c.bars.ListBars(ctx, source, symbol, from, to)
}

func countWeekdays(from, to time.Time) int {
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}
