package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockcsv/internal/market"
)

type BarRepository struct {
	db *sql.DB
}

func NewBarRepository(db *sql.DB) *BarRepository {
	return &BarRepository{db: db}
}

// SaveBars inserts bars for the given source, skipping rows already present.
// It returns the number of newly inserted rows.
func (r *BarRepository) SaveBars(ctx context.Context, source string, bars []market.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	const batchSize = 500
	var total int64

	for i := 0; i < len(bars); i += batchSize {
		end := i + batchSize
		if end > len(bars) {
			end = len(bars)
		}
		batch := bars[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*9)
		for j, b := range batch {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, source, b.Symbol, b.Date.Format(market.DateFormat),
				b.Open.String(), b.High.String(), b.Low.String(),
				b.Close.String(), b.AdjClose.String(), b.Volume)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			"INSERT OR IGNORE INTO bars (source, symbol, date, open, high, low, close, adj_close, volume) VALUES %s",
			strings.Join(placeholders, ", "),
		)

		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("save bars: %w", err)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}

func (r *BarRepository) ListBars(ctx context.Context, source, symbol string, from, to time.Time) ([]market.Bar, error) {
	const query = `SELECT symbol, date, open, high, low, close, adj_close, volume
		FROM bars
		WHERE source = ? AND symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query,
		source, symbol,
		from.Format(market.DateFormat), to.Format(market.DateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bars []market.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

func (r *BarRepository) ExistingDates(ctx context.Context, source, symbol string, from, to time.Time) (map[time.Time]bool, error) {
	const query = `SELECT date FROM bars
		WHERE source = ? AND symbol = ? AND date >= ? AND date <= ?`

	rows, err := r.db.QueryContext(ctx, query,
		source, symbol,
		from.Format(market.DateFormat), to.Format(market.DateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("existing dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dates := make(map[time.Time]bool)
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		t, _ := time.Parse(market.DateFormat, dateStr)
		dates[t] = true
	}

	return dates, rows.Err()
}

func scanBar(rows *sql.Rows) (market.Bar, error) {
	var b market.Bar
	var dateStr, open, high, low, cls, adjClose string
	if err := rows.Scan(&b.Symbol, &dateStr, &open, &high, &low, &cls, &adjClose, &b.Volume); err != nil {
		return market.Bar{}, fmt.Errorf("scan bar: %w", err)
	}
	b.Date, _ = time.Parse(market.DateFormat, dateStr)

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{open, &b.Open},
		{high, &b.High},
		{low, &b.Low},
		{cls, &b.Close},
		{adjClose, &b.AdjClose},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse stored price: %w", err)
		}
		*f.dst = d
	}

	return b, nil
}
