// Package quote fetches point-in-time price snapshots for a list of symbols
// and writes them to CSV.
package quote

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockcsv/internal/market"
)

// Backend returns current quotes for a list of symbols. Symbols the source
// does not know may be missing from the result.
type Backend interface {
	Quotes(symbols []string) ([]market.Quote, error)
}

type Service struct {
	backend Backend
}

func NewService(b Backend) *Service {
	return &Service{backend: b}
}

// Snapshot fetches current quotes for the given symbols. Symbols are
// trimmed and uppercased, blanks dropped. The result has one entry per
// requested symbol in request order; symbols the backend did not return
// come back zero-valued.
func (s *Service) Snapshot(symbols []string) ([]market.Quote, error) {
	cleaned := normalizeSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	fetched, err := s.backend.Quotes(cleaned)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	bySymbol := make(map[string]market.Quote, len(fetched))
	for _, q := range fetched {
		bySymbol[q.Symbol] = q
	}

	out := make([]market.Quote, len(cleaned))
	for i, sym := range cleaned {
		q, ok := bySymbol[sym]
		if !ok {
			q = market.Quote{Symbol: sym}
		}
		out[i] = q
	}
	return out, nil
}

// SaveSnapshot fetches quotes and writes them to outputPath, creating
// parent directories as needed.
func (s *Service) SaveSnapshot(symbols []string, outputPath string) error {
	quotes, err := s.Snapshot(symbols)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if err := WriteCSV(f, quotes); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	slog.Info("wrote quote csv", "path", outputPath, "rows", len(quotes))
	return nil
}

// WriteCSV writes quotes as CSV. Quotes the backend did not return produce
// a row with the symbol and blank price, currency, and timestamp cells.
func WriteCSV(w io.Writer, quotes []market.Quote) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"symbol", "price", "currency", "timestamp"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, q := range quotes {
		record := []string{q.Symbol, "", "", ""}
		if !q.Time.IsZero() {
			record[1] = q.Price.StringFixed(4)
			record[2] = q.Currency
			record[3] = q.Time.Format(time.RFC3339)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// normalizeSymbols trims whitespace, uppercases, and drops blank entries.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
