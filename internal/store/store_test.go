package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stockcsv/internal/market"
)

func day(d int) time.Time {
	return time.Date(2023, time.January, d, 0, 0, 0, 0, time.UTC)
}

func testBar(symbol string, date time.Time, close string) market.Bar {
	c, _ := decimal.NewFromString(close)
	return market.Bar{
		Symbol:   symbol,
		Date:     date,
		Open:     c.Add(decimal.NewFromInt(1)),
		High:     c.Add(decimal.NewFromInt(2)),
		Low:      c.Sub(decimal.NewFromInt(1)),
		Close:    c,
		AdjClose: c,
		Volume:   1000,
	}
}

func newTestRepo(t *testing.T) *BarRepository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBarRepository(db.DB)
}

func TestSaveAndListBars(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bars := []market.Bar{
		testBar("AAPL", day(4), "126.36"),
		testBar("AAPL", day(3), "125.07"),
	}

	n, err := repo.SaveBars(ctx, "yahoo", bars)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := repo.ListBars(ctx, "yahoo", "AAPL", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Listed in date order, decimals intact.
	require.Equal(t, "2023-01-03", got[0].Date.Format(market.DateFormat))
	require.Equal(t, "125.07", got[0].Close.String())
	require.Equal(t, "2023-01-04", got[1].Date.Format(market.DateFormat))
	require.Equal(t, "126.36", got[1].Close.String())
	require.Equal(t, int64(1000), got[0].Volume)

	// Other sources and symbols don't leak in.
	got, err = repo.ListBars(ctx, "alphavantage", "AAPL", day(1), day(31))
	require.NoError(t, err)
	require.Empty(t, got)
	got, err = repo.ListBars(ctx, "yahoo", "MSFT", day(1), day(31))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSaveBars_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bars := []market.Bar{testBar("AAPL", day(3), "125.07")}

	n, err := repo.SaveBars(ctx, "yahoo", bars)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = repo.SaveBars(ctx, "yahoo", bars)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	got, err := repo.ListBars(ctx, "yahoo", "AAPL", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExistingDates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.SaveBars(ctx, "yahoo", []market.Bar{
		testBar("AAPL", day(3), "125.07"),
		testBar("AAPL", day(5), "125.02"),
	})
	require.NoError(t, err)

	dates, err := repo.ExistingDates(ctx, "yahoo", "AAPL", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, dates, 2)
	require.True(t, dates[day(3)])
	require.True(t, dates[day(5)])
	require.False(t, dates[day(4)])
}

type fakeProvider struct {
	bars  []market.Bar
	err   error
	calls int
}

func (f *fakeProvider) Source() string { return "fake" }

func (f *fakeProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func TestCachedProvider_FetchesAndServesFromCache(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// 2023-01-03..05 is Tue..Thu: three weekdays, so three bars give full
	// coverage for the second call.
	upstream := &fakeProvider{bars: []market.Bar{
		testBar("AAPL", day(3), "125.07"),
		testBar("AAPL", day(4), "126.36"),
		testBar("AAPL", day(5), "125.02"),
	}}
	cached := NewCachedProvider(upstream, repo)

	bars, err := cached.Fetch(ctx, "AAPL", day(3), day(5))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	require.Equal(t, 1, upstream.calls)

	bars, err = cached.Fetch(ctx, "AAPL", day(3), day(5))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	require.Equal(t, 1, upstream.calls, "second fetch should be served from cache")

	require.Equal(t, "125.07", bars[0].Close.String())
}

func TestCachedProvider_PartialCoverageRefetches(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Seed one of five weekdays; 0.2 coverage is below the threshold.
	_, err := repo.SaveBars(ctx, "fake", []market.Bar{testBar("AAPL", day(3), "125.07")})
	require.NoError(t, err)

	upstream := &fakeProvider{bars: []market.Bar{
		testBar("AAPL", day(2), "130.74"),
		testBar("AAPL", day(3), "125.07"),
		testBar("AAPL", day(4), "126.36"),
		testBar("AAPL", day(5), "125.02"),
		testBar("AAPL", day(6), "129.62"),
	}}
	cached := NewCachedProvider(upstream, repo)

	bars, err := cached.Fetch(ctx, "AAPL", day(2), day(6))
	require.NoError(t, err)
	require.Equal(t, 1, upstream.calls)
	require.Len(t, bars, 5)
}

func TestCachedProvider_UpstreamErrorPropagates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	upstreamErr := errors.New("provider down")
	upstream := &fakeProvider{err: upstreamErr}
	cached := NewCachedProvider(upstream, repo)

	_, err := cached.Fetch(ctx, "AAPL", day(3), day(5))
	require.ErrorIs(t, err, upstreamErr)
}

func TestCachedProvider_Source(t *testing.T) {
	cached := NewCachedProvider(&fakeProvider{}, newTestRepo(t))
	require.Equal(t, "fake", cached.Source())
}
