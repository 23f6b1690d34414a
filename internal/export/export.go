// Package export fetches historical bars for a list of symbols and writes
// the merged result to a CSV file.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"stockcsv/internal/market"
	"stockcsv/internal/provider"
)

// csvHeader is the long-format header: one row per symbol and date.
var csvHeader = []string{"symbol", "date", "open", "high", "low", "close", "adj_close", "volume"}

type Service struct {
	provider provider.Provider
}

func NewService(p provider.Provider) *Service {
	return &Service{provider: p}
}

// Fetch retrieves bars for every symbol in order and returns them sorted by
// symbol and date. The first provider error aborts the fetch. Symbols with
// no data contribute nothing; if the whole fetch comes back empty the error
// wraps provider.ErrNoData. Symbol and date range validation is left to the
// provider.
func (s *Service) Fetch(ctx context.Context, symbols []string, from, to time.Time) ([]market.Bar, error) {
	var all []market.Bar
	for _, symbol := range symbols {
		bars, err := s.provider.Fetch(ctx, symbol, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", symbol, err)
		}
		all = append(all, bars...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w for symbols %v", provider.ErrNoData, symbols)
	}

	market.SortBars(all)
	return all, nil
}

// WriteCSV writes bars as CSV: a header row followed by one row per bar.
// Prices are rendered with four decimal places, dates as YYYY-MM-DD.
func WriteCSV(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, b := range bars {
		record := []string{
			b.Symbol,
			b.Date.Format(market.DateFormat),
			b.Open.StringFixed(4),
			b.High.StringFixed(4),
			b.Low.StringFixed(4),
			b.Close.StringFixed(4),
			b.AdjClose.StringFixed(4),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FetchAndSave fetches bars for the symbols and writes them to outputPath,
// overwriting any existing file. Nothing is written when the fetch fails.
// The parent directory must exist; the os error for a missing one is
// returned unmodified.
func (s *Service) FetchAndSave(ctx context.Context, symbols []string, from, to time.Time, outputPath string) error {
	bars, err := s.Fetch(ctx, symbols, from, to)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if err := WriteCSV(f, bars); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	slog.Info("wrote price csv", "path", outputPath, "rows", len(bars), "symbols", len(symbols))
	return nil
}
