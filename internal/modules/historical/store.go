// Package historical stores daily price history and assembles price panels
// from it.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/portfoliopilot/internal/database"
	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNoData is returned when a requested symbol has no stored history.
var ErrNoData = fmt.Errorf("%w: no price history", domain.ErrMalformedInput)

// DatedBar is a bar on a trading date.
type DatedBar struct {
	Date time.Time
	domain.Bar
}

// Store provides access to the daily_prices table.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a store over a migrated history database.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}
}

// Upsert inserts or replaces bars for a symbol in a single transaction.
func (s *Store) Upsert(ctx context.Context, symbol string, bars []DatedBar) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrMalformedInput)
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_prices
			(symbol, date, open, high, low, close, adj_close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			_, err := stmt.ExecContext(ctx,
				symbol,
				dayUnix(b.Date),
				nullable(b.Open),
				nullable(b.High),
				nullable(b.Low),
				nullable(b.Close),
				nullable(b.AdjClose),
				nullable(b.Volume),
			)
			if err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", b.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Stored daily prices")
	return nil
}

// Symbols lists every symbol with stored history.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// Panel assembles a price panel for symbols over [start, end]. A zero start
// or end leaves that side open. The date index is the union of every
// symbol's dates; a symbol without a bar on some date is missing there.
func (s *Store) Panel(ctx context.Context, symbols []string, start, end time.Time) (*domain.PricePanel, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", domain.ErrMalformedInput)
	}

	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		lo = dayUnix(start)
	}
	if !end.IsZero() {
		hi = dayUnix(end)
	}

	series := make([]map[int64]domain.Bar, len(symbols))
	index := make(map[int64]struct{})
	for i, sym := range symbols {
		bars, err := s.load(ctx, sym, lo, hi)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoData, sym)
		}
		for d := range bars {
			index[d] = struct{}{}
		}
		series[i] = bars
	}

	days := make([]int64, 0, len(index))
	for d := range index {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	dates := make([]time.Time, len(days))
	for t, d := range days {
		dates[t] = time.Unix(d, 0).UTC()
	}

	panel := domain.NewPricePanel(append([]string(nil), symbols...), dates)
	for i, bars := range series {
		for t, d := range days {
			if b, ok := bars[d]; ok {
				panel.Bars[i][t] = b
			}
		}
	}
	if err := panel.Validate(); err != nil {
		return nil, err
	}

	s.log.Debug().
		Strs("symbols", symbols).
		Int("dates", len(dates)).
		Msg("Assembled price panel")
	return panel, nil
}

func (s *Store) load(ctx context.Context, symbol string, lo, hi int64) (map[int64]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, adj_close, volume
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	bars := make(map[int64]domain.Bar)
	for rows.Next() {
		var date int64
		var open, high, low, cls, adj, vol sql.NullFloat64
		if err := rows.Scan(&date, &open, &high, &low, &cls, &adj, &vol); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		bars[date] = domain.Bar{
			Open:     value(open),
			High:     value(high),
			Low:      value(low),
			Close:    value(cls),
			AdjClose: value(adj),
			Volume:   value(vol),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return bars, nil
}

func sortBars(bars []DatedBar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// dayUnix truncates t to its UTC calendar day.
func dayUnix(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func value(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
