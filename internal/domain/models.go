// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedInput marks inputs whose shape is inconsistent (mismatched
// dimensions, unsorted or duplicate dates). It is the only input condition
// the core reports as a failure; everything else degrades locally.
var ErrMalformedInput = errors.New("malformed input")

// Bar is one OHLCV observation. Missing fields are NaN.
type Bar struct {
	Open     float64 `json:"open" msgpack:"open"`
	High     float64 `json:"high" msgpack:"high"`
	Low      float64 `json:"low" msgpack:"low"`
	Close    float64 `json:"close" msgpack:"close"`
	AdjClose float64 `json:"adj_close" msgpack:"adj_close"`
	Volume   float64 `json:"volume" msgpack:"volume"`
}

// MissingBar returns a bar with every field missing.
func MissingBar() Bar {
	nan := math.NaN()
	return Bar{Open: nan, High: nan, Low: nan, Close: nan, AdjClose: nan, Volume: nan}
}

// PricePanel is a trading-date index with per-asset bars.
// Bars[asset][date] lines up with Assets and Dates.
type PricePanel struct {
	Assets []string
	Dates  []time.Time
	Bars   [][]Bar
}

// NewPricePanel creates a panel where every observation is missing.
func NewPricePanel(assets []string, dates []time.Time) *PricePanel {
	bars := make([][]Bar, len(assets))
	for i := range bars {
		bars[i] = make([]Bar, len(dates))
		for j := range bars[i] {
			bars[i][j] = MissingBar()
		}
	}
	return &PricePanel{Assets: assets, Dates: dates, Bars: bars}
}

// Len returns the number of trading dates.
func (p *PricePanel) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Dates)
}

// Validate checks that dates are strictly increasing and that every asset has
// one bar per date.
func (p *PricePanel) Validate() error {
	if p == nil {
		return nil
	}
	if len(p.Bars) != len(p.Assets) {
		return fmt.Errorf("%w: %d assets but %d bar columns", ErrMalformedInput, len(p.Assets), len(p.Bars))
	}
	seen := make(map[string]struct{}, len(p.Assets))
	for _, a := range p.Assets {
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: duplicate asset %q", ErrMalformedInput, a)
		}
		seen[a] = struct{}{}
	}
	for i := 1; i < len(p.Dates); i++ {
		if !p.Dates[i].After(p.Dates[i-1]) {
			return fmt.Errorf("%w: dates not strictly increasing at %s", ErrMalformedInput, p.Dates[i].Format(DateLayout))
		}
	}
	for i, bars := range p.Bars {
		if len(bars) != len(p.Dates) {
			return fmt.Errorf("%w: asset %s has %d bars for %d dates", ErrMalformedInput, p.Assets[i], len(bars), len(p.Dates))
		}
	}
	return nil
}

// Prices extracts one price per asset per date: adjusted close for assets
// that carry any adjusted close, close otherwise. Rows where every asset is
// missing are dropped.
func (p *PricePanel) Prices() *Frame {
	if p == nil || len(p.Assets) == 0 {
		return &Frame{}
	}

	useAdj := make([]bool, len(p.Assets))
	for i, bars := range p.Bars {
		for _, b := range bars {
			if !math.IsNaN(b.AdjClose) {
				useAdj[i] = true
				break
			}
		}
	}

	frame := &Frame{Assets: append([]string(nil), p.Assets...)}
	for t, date := range p.Dates {
		row := make([]float64, len(p.Assets))
		observed := false
		for i := range p.Assets {
			v := p.Bars[i][t].Close
			if useAdj[i] {
				v = p.Bars[i][t].AdjClose
			}
			row[i] = v
			if !math.IsNaN(v) {
				observed = true
			}
		}
		if observed {
			frame.Dates = append(frame.Dates, date)
			frame.Rows = append(frame.Rows, row)
		}
	}
	return frame
}

// DateLayout is the wire format for dates.
const DateLayout = "2006-01-02"

// ParseDate parses a wire date. The empty string is the zero time, which
// callers treat as an open range end.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", ErrMalformedInput, s)
	}
	return d, nil
}
