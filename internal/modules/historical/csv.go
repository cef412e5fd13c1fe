package historical

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/portfoliopilot/internal/domain"
)

// csvColumns is the accepted header, in any order. Only date and one of
// close/adj_close are required.
var csvColumns = []string{"date", "open", "high", "low", "close", "adj_close", "volume"}

// ParseCSV parses daily bars from CSV with a header row. Empty cells,
// "null" and "NaN" are missing values. Rows come back sorted by date; a date
// repeated in the file keeps its last row.
func ParseCSV(r io.Reader) ([]DatedBar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", domain.ErrMalformedInput)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if name == "adjclose" {
			name = "adj_close"
		}
		pos[name] = i
	}
	if _, ok := pos["date"]; !ok {
		return nil, fmt.Errorf("%w: csv has no date column", domain.ErrMalformedInput)
	}
	_, hasClose := pos["close"]
	_, hasAdj := pos["adj_close"]
	if !hasClose && !hasAdj {
		return nil, fmt.Errorf("%w: csv has no close or adj_close column", domain.ErrMalformedInput)
	}

	byDate := make(map[time.Time]domain.Bar)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrMalformedInput, line, err)
		}

		date, err := time.Parse(domain.DateLayout, field(record, pos, "date"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad date %q", domain.ErrMalformedInput, line, field(record, pos, "date"))
		}

		values := make(map[string]float64, len(csvColumns)-1)
		for _, col := range csvColumns[1:] {
			v, err := parseValue(field(record, pos, col))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad %s: %v", domain.ErrMalformedInput, line, col, err)
			}
			values[col] = v
		}
		byDate[date] = domain.Bar{
			Open:     values["open"],
			High:     values["high"],
			Low:      values["low"],
			Close:    values["close"],
			AdjClose: values["adj_close"],
			Volume:   values["volume"],
		}
	}

	bars := make([]DatedBar, 0, len(byDate))
	for d, b := range byDate {
		bars = append(bars, DatedBar{Date: d, Bar: b})
	}
	sortBars(bars)
	return bars, nil
}

func field(record []string, pos map[string]int, name string) string {
	i, ok := pos[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseValue(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "null", "nan", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ImportCSV parses r and stores its bars under symbol, returning the number
// of bars stored.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, symbol string) (int, error) {
	bars, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w: csv for %s has no rows", domain.ErrMalformedInput, symbol)
	}
	if err := s.Upsert(ctx, symbol, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}
