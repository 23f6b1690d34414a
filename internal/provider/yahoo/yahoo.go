// Package yahoo implements a provider for Yahoo Finance historical price
// data. It uses the v8 chart API with cookie + crumb authentication,
// matching the approach used by the yfinance Python library.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stockcsv/internal/market"
	"stockcsv/internal/provider"
)

const (
	defaultChartEndpoint = "https://query2.finance.yahoo.com/v8/finance/chart"
	defaultCookieURL     = "https://fc.yahoo.com"
	defaultCrumbURL      = "https://query1.finance.yahoo.com/v1/test/getcrumb"
	dateFormat           = "2006-01-02"
	chunkDays            = 1250
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Provider fetches historical price data from Yahoo Finance.
type Provider struct {
	workers       int
	client        *http.Client
	chartEndpoint string
	cookieURL     string
	crumbURL      string

	mu    sync.Mutex
	crumb string
}

// New creates a Provider with the given options applied.
func New(opts ...Option) *Provider {
	jar, _ := cookiejar.New(nil)
	p := &Provider{
		workers:       5,
		client:        &http.Client{Jar: jar},
		chartEndpoint: defaultChartEndpoint,
		cookieURL:     defaultCookieURL,
		crumbURL:      defaultCrumbURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Option configures a Provider.
type Option func(*Provider)

// WithWorkers sets the worker concurrency for parallel chunk fetching.
func WithWorkers(n int) Option {
	return func(p *Provider) { p.workers = n }
}

// WithClient sets the HTTP client. The client should have a cookie jar.
func WithClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithChartEndpoint overrides the default chart API endpoint.
func WithChartEndpoint(ep string) Option {
	return func(p *Provider) { p.chartEndpoint = ep }
}

// WithCookieURL overrides the URL used to obtain the session cookie.
func WithCookieURL(u string) Option {
	return func(p *Provider) { p.cookieURL = u }
}

// WithCrumbURL overrides the URL used to obtain the crumb token.
func WithCrumbURL(u string) Option {
	return func(p *Provider) { p.crumbURL = u }
}

// Source returns the provider identifier.
func (p *Provider) Source() string { return "yahoo" }

// chartResponse represents the Yahoo Finance v8 chart API response.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []any `json:"open"`
					High   []any `json:"high"`
					Low    []any `json:"low"`
					Close  []any `json:"close"`
					Volume []any `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []any `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves daily bars for the given symbol and date range. Long
// ranges are split into chunks fetched in parallel; the first chunk error
// fails the whole fetch.
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

	// Ensure we have a valid crumb before starting parallel fetches.
	if err := p.ensureCrumb(ctx); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}

	chunks := provider.SplitDateRange(from, to, chunkDays)
	results := make([][]market.Bar, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			bars, err := p.fetchChart(ctx, symbol, c.From, c.To)
			if err != nil {
				return fmt.Errorf("fetch %s %s..%s: %w", symbol,
					c.From.Format(dateFormat), c.To.Format(dateFormat), err)
			}
			results[i] = bars
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []market.Bar
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// ensureCrumb fetches a session cookie and crumb token if not already cached.
func (p *Provider) ensureCrumb(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.crumb != "" {
		return nil
	}

	// Step 1: GET fc.yahoo.com to obtain a session cookie.
	cookieReq, err := http.NewRequestWithContext(ctx, "GET", p.cookieURL, nil)
	if err != nil {
		return fmt.Errorf("build cookie request: %w", err)
	}
	cookieReq.Header.Set("User-Agent", userAgent)

	cookieRes, err := p.client.Do(cookieReq) //nolint:gosec // URL from internal config
	if err != nil {
		return fmt.Errorf("fetch cookie: %w", err)
	}
	_ = cookieRes.Body.Close()

	// Step 2: GET crumb endpoint (cookie is sent automatically via jar).
	crumbReq, err := http.NewRequestWithContext(ctx, "GET", p.crumbURL, nil)
	if err != nil {
		return fmt.Errorf("build crumb request: %w", err)
	}
	crumbReq.Header.Set("User-Agent", userAgent)

	crumbRes, err := p.client.Do(crumbReq) //nolint:gosec // URL from internal config
	if err != nil {
		return fmt.Errorf("fetch crumb: %w", err)
	}
	defer func() { _ = crumbRes.Body.Close() }()

	if crumbRes.StatusCode != http.StatusOK {
		return fmt.Errorf("crumb endpoint returned HTTP %d", crumbRes.StatusCode)
	}

	body, err := io.ReadAll(crumbRes.Body)
	if err != nil {
		return fmt.Errorf("read crumb: %w", err)
	}

	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return fmt.Errorf("empty crumb received")
	}

	p.crumb = crumb
	slog.Info("yahoo: obtained crumb", "crumb_len", len(crumb))
	return nil
}

// fetchChart fetches chart data for a single date range chunk.
func (p *Provider) fetchChart(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	p.mu.Lock()
	crumb := p.crumb
	p.mu.Unlock()

	// period2 is exclusive; push it one day past the chunk end so the final
	// session is included.
	reqURL := fmt.Sprintf("%s/%s?period1=%s&period2=%s&interval=1d&events=div%%2Csplits&includeAdjustedClose=true&crumb=%s",
		p.chartEndpoint,
		symbol,
		strconv.FormatInt(from.Unix(), 10),
		strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10),
		crumb,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := p.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		// Invalidate crumb on auth errors so the next Fetch retries auth.
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			p.mu.Lock()
			p.crumb = ""
			p.mu.Unlock()
		}
		return nil, fmt.Errorf("yahoo returned HTTP %d for %s", res.StatusCode, symbol)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo response: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	var adj []any
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	n := min(len(result.Timestamp), len(quote.Close))
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		// Yahoo uses null for sessions without data (holidays, halts); a bar
		// missing any OHLC value is skipped entirely.
		closeVal, ok := at(quote.Close, i)
		if !ok {
			continue
		}
		openVal, ok := at(quote.Open, i)
		if !ok {
			continue
		}
		highVal, ok := at(quote.High, i)
		if !ok {
			continue
		}
		lowVal, ok := at(quote.Low, i)
		if !ok {
			continue
		}
		volVal, _ := at(quote.Volume, i)
		adjVal, ok := at(adj, i)
		if !ok {
			adjVal = closeVal
		}

		date := time.Unix(result.Timestamp[i], 0).UTC().Truncate(24 * time.Hour)
		bars = append(bars, market.Bar{
			Symbol:   symbol,
			Date:     date,
			Open:     decimal.NewFromFloat(openVal),
			High:     decimal.NewFromFloat(highVal),
			Low:      decimal.NewFromFloat(lowVal),
			Close:    decimal.NewFromFloat(closeVal),
			AdjClose: decimal.NewFromFloat(adjVal),
			Volume:   int64(volVal),
		})
	}

	slog.Info("retrieved yahoo data", "symbol", symbol,
		"from", from.Format(dateFormat), "to", to.Format(dateFormat),
		"count", len(bars))

	return bars, nil
}

// at returns the float at index i, or false when the index is out of range
// or the value is null.
func at(vals []any, i int) (float64, bool) {
	if i >= len(vals) {
		return 0, false
	}
	return toFloat64(vals[i])
}

// toFloat64 converts a JSON number (which may be float64 or json.Number) to float64.
// Returns false for nil values (Yahoo uses null for missing data points).
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
