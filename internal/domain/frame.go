package domain

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Frame is a date-indexed matrix with one column per asset.
// Rows[t][i] is the value of Assets[i] on Dates[t]; NaN means missing.
type Frame struct {
	Assets []string
	Dates  []time.Time
	Rows   [][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Width returns the number of assets.
func (f *Frame) Width() int {
	if f == nil {
		return 0
	}
	return len(f.Assets)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// IndexAtOrBefore returns the index of the last row dated on or before date,
// or -1 when every row is later.
func (f *Frame) IndexAtOrBefore(date time.Time) int {
	if f == nil {
		return -1
	}
	return sort.Search(len(f.Dates), func(i int) bool { return f.Dates[i].After(date) }) - 1
}

// Window returns up to n rows ending at row end (inclusive). The result shares
// storage with f and must not be modified.
func (f *Frame) Window(end, n int) *Frame {
	out := &Frame{Assets: f.Assets}
	if end < 0 || n <= 0 {
		return out
	}
	start := end - n + 1
	if start < 0 {
		start = 0
	}
	out.Dates = f.Dates[start : end+1]
	out.Rows = f.Rows[start : end+1]
	return out
}

// Column copies one asset's values.
func (f *Frame) Column(i int) []float64 {
	col := make([]float64, len(f.Rows))
	for t, row := range f.Rows {
		col[t] = row[i]
	}
	return col
}

// Returns derives period-over-period percentage changes from a price frame.
// Prices are carried forward over gaps, the first row is dropped, and rows
// where every return is missing are dropped.
func Returns(prices *Frame) *Frame {
	out := &Frame{Assets: prices.Assets}
	if prices.Len() < 2 {
		return out
	}

	last := make([]float64, prices.Width())
	for i := range last {
		last[i] = math.NaN()
	}
	for i, v := range prices.Rows[0] {
		last[i] = v
	}

	for t := 1; t < prices.Len(); t++ {
		row := make([]float64, prices.Width())
		observed := false
		for i, v := range prices.Rows[t] {
			if math.IsNaN(v) {
				v = last[i]
			}
			prev := last[i]
			if prev > 0 && !math.IsNaN(v) {
				row[i] = v/prev - 1
				observed = true
			} else {
				row[i] = math.NaN()
			}
			last[i] = v
		}
		if observed {
			out.Dates = append(out.Dates, prices.Dates[t])
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Mean returns the per-asset mean over non-missing values (NaN when none).
func (f *Frame) Mean() []float64 {
	means := make([]float64, f.Width())
	for i := range means {
		means[i] = stat.Mean(dropNaN(f.Column(i)), nil)
		if len(f.Rows) == 0 {
			means[i] = math.NaN()
		}
	}
	return means
}

// Covariance returns the sample covariance matrix (N-1 denominator) using
// pairwise-complete observations. Pairs with fewer than two joint
// observations are NaN.
func (f *Frame) Covariance() *mat.SymDense {
	n := f.Width()
	cov := mat.NewSymDense(n, nil)
	cols := make([][]float64, n)
	for i := range cols {
		cols[i] = f.Column(i)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			x, y := jointObservations(cols[i], cols[j])
			if len(x) < 2 {
				cov.SetSym(i, j, math.NaN())
				continue
			}
			cov.SetSym(i, j, stat.Covariance(x, y, nil))
		}
	}
	return cov
}

// Matrix returns the frame as a dense rows x assets matrix with missing values
// replaced by fill.
func (f *Frame) Matrix(fill float64) *mat.Dense {
	if f.Len() == 0 || f.Width() == 0 {
		return nil
	}
	m := mat.NewDense(f.Len(), f.Width(), nil)
	for t, row := range f.Rows {
		for i, v := range row {
			if math.IsNaN(v) {
				v = fill
			}
			m.Set(t, i, v)
		}
	}
	return m
}

func jointObservations(a, b []float64) ([]float64, []float64) {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for k := range a {
		if math.IsNaN(a[k]) || math.IsNaN(b[k]) {
			continue
		}
		x = append(x, a[k])
		y = append(y, b[k])
	}
	return x, y
}

func dropNaN(xs []float64) []float64 {
	out := xs[:0:0]
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// ReturnMatrix is a Frame of simple period returns.
type ReturnMatrix = Frame
