// Package market holds the domain types shared by providers, storage, and
// the CSV exporters.
package market

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical date layout used in CSV output and storage.
const DateFormat = "2006-01-02"

// Bar is one daily OHLCV record for a symbol. Dates are UTC, truncated to
// the day. Prices are decimals so values survive round-trips through
// storage and CSV without float drift.
type Bar struct {
	Symbol   string
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   int64
}

// Quote is a point-in-time price snapshot for a symbol. A Quote with a zero
// Time means the provider returned nothing for the symbol.
type Quote struct {
	Symbol   string
	Price    decimal.Decimal
	Currency string
	Time     time.Time
}

// SortBars orders bars by symbol, then date, ascending.
func SortBars(bars []Bar) {
	slices.SortFunc(bars, func(a, b Bar) int {
		if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
}
