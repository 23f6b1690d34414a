// Package alphavantage implements a provider for the Alpha Vantage time
// series API. Responses carry the full history for a symbol; the requested
// date range is filtered locally.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockcsv/internal/market"
)

const (
	defaultEndpoint = "https://www.alphavantage.co/query"
	dateFormat      = "2006-01-02"
)

// Series selects the time series resolution.
type Series string

const (
	SeriesDaily   Series = "daily"
	SeriesWeekly  Series = "weekly"
	SeriesMonthly Series = "monthly"
)

// function maps a Series to the Alpha Vantage function parameter. The
// adjusted variants are used so bars carry an adjusted close.
func (s Series) function() (string, error) {
	switch s {
	case SeriesDaily:
		return "TIME_SERIES_DAILY_ADJUSTED", nil
	case SeriesWeekly:
		return "TIME_SERIES_WEEKLY_ADJUSTED", nil
	case SeriesMonthly:
		return "TIME_SERIES_MONTHLY_ADJUSTED", nil
	default:
		return "", fmt.Errorf("unknown series: %s", s)
	}
}

// Provider fetches historical price data from Alpha Vantage.
type Provider struct {
	apiKey   string
	series   Series
	client   *http.Client
	endpoint string
}

// New creates a Provider with the given options applied.
func New(opts ...Option) *Provider {
	p := &Provider{
		series:   SeriesDaily,
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey sets the Alpha Vantage API key. A key is required for every
// request.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithSeries sets the time series resolution. Defaults to daily.
func WithSeries(s Series) Option {
	return func(p *Provider) { p.series = s }
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithEndpoint overrides the default query endpoint.
func WithEndpoint(ep string) Option {
	return func(p *Provider) { p.endpoint = ep }
}

// Source returns the provider identifier.
func (p *Provider) Source() string { return "alphavantage" }

// Fetch retrieves bars for the given symbol and date range, inclusive of
// both endpoints. Rate limit notices from the API surface as errors and are
// not retried.
func (p *Provider) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if from.IsZero() {
		return nil, fmt.Errorf("start date cannot be empty")
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.After(to) {
		return nil, fmt.Errorf("start date cannot be after end date")
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("alphavantage: api key required")
	}

	fn, err := p.series.function()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", fn)
	q.Set("symbol", symbol)
	q.Set("outputsize", "full")
	q.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage returned HTTP %d for %s", res.StatusCode, symbol)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	bars, err := parseSeries(symbol, body, from, to)
	if err != nil {
		return nil, err
	}

	slog.Info("retrieved alphavantage data", "symbol", symbol,
		"from", from.Format(dateFormat), "to", to.Format(dateFormat),
		"count", len(bars))

	return bars, nil
}

// parseSeries extracts bars from an Alpha Vantage response body, keeping
// only dates within [from, to].
func parseSeries(symbol string, body []byte, from, to time.Time) ([]market.Bar, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse alphavantage response: %w", err)
	}

	// The API reports problems as 200 responses with a message key: bad
	// requests under "Error Message", rate limiting under "Note" or
	// "Information".
	for _, key := range []string{"Error Message", "Note", "Information"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
			msg = string(raw)
		}
		return nil, fmt.Errorf("alphavantage: %s", msg)
	}

	// The series key names the resolution ("Time Series (Daily)", "Weekly
	// Adjusted Time Series", ...); find it by substring.
	var seriesRaw json.RawMessage
	for key, raw := range payload {
		if strings.Contains(key, "Time Series") {
			seriesRaw = raw
			break
		}
	}
	if seriesRaw == nil {
		return nil, fmt.Errorf("alphavantage: no time series in response for %s", symbol)
	}

	var series map[string]map[string]string
	if err := json.Unmarshal(seriesRaw, &series); err != nil {
		return nil, fmt.Errorf("parse time series: %w", err)
	}

	bars := make([]market.Bar, 0, len(series))
	for dateStr, fields := range series {
		d, err := time.Parse(dateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		if d.Before(from) || d.After(to) {
			continue
		}
		bar, err := parseBar(symbol, d, fields)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}

	slices.SortFunc(bars, func(a, b market.Bar) int {
		return a.Date.Compare(b.Date)
	})

	return bars, nil
}

func parseBar(symbol string, date time.Time, fields map[string]string) (market.Bar, error) {
	bar := market.Bar{Symbol: symbol, Date: date}

	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	} {
		raw, ok := fieldValue(fields, f.name)
		if !ok {
			return market.Bar{}, fmt.Errorf("alphavantage: missing %s for %s on %s", f.name, symbol, date.Format(dateFormat))
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse %s for %s on %s: %w", f.name, symbol, date.Format(dateFormat), err)
		}
		*f.dst = d
	}

	// Non-adjusted series have no adjusted close; fall back to the close.
	if raw, ok := fieldValue(fields, "adjusted close"); ok {
		adj, err := decimal.NewFromString(raw)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse adjusted close for %s on %s: %w", symbol, date.Format(dateFormat), err)
		}
		bar.AdjClose = adj
	} else {
		bar.AdjClose = bar.Close
	}

	if raw, ok := fieldValue(fields, "volume"); ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse volume for %s on %s: %w", symbol, date.Format(dateFormat), err)
		}
		bar.Volume = v
	}

	return bar, nil
}

// fieldValue finds a field by its unnumbered name. Alpha Vantage prefixes
// field keys with ordinals that differ between endpoints ("5. adjusted
// close" pushes volume from "5. volume" to "6. volume"), so match on the
// suffix instead.
func fieldValue(fields map[string]string, name string) (string, bool) {
	for key, v := range fields {
		if strings.HasSuffix(key, ". "+name) {
			return v, true
		}
	}
	return "", false
}
