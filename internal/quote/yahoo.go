package quote

import (
	"fmt"
	"time"

	fquote "github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"stockcsv/internal/market"
)

// YahooBackend fetches quotes from Yahoo Finance via the finance-go client.
type YahooBackend struct{}

func (YahooBackend) Quotes(symbols []string) ([]market.Quote, error) {
	iter := fquote.List(symbols)

	var quotes []market.Quote
	for iter.Next() {
		q := iter.Quote()
		if q == nil {
			continue
		}
		quotes = append(quotes, market.Quote{
			Symbol:   q.Symbol,
			Price:    decimal.NewFromFloat(q.RegularMarketPrice),
			Currency: q.CurrencyID,
			Time:     time.Unix(int64(q.RegularMarketTime), 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo quotes: %w", err)
	}

	return quotes, nil
}
