package domain

import (
	"math"
	"time"
)

// WeightTolerance is the sum-to-one tolerance for a valid weight vector.
const WeightTolerance = 1e-6

// EqualWeights returns the uniform vector over n assets.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// Normalize clips negative and non-finite entries to zero and rescales to sum
// to one. A zero total resolves to the uniform vector.
func Normalize(w []float64) []float64 {
	out := make([]float64, len(w))
	total := 0.0
	for i, v := range w {
		if v > 0 && !math.IsInf(v, 1) {
			out[i] = v
			total += v
		}
	}
	if total <= 0 || math.IsNaN(total) {
		return EqualWeights(len(w))
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// ValidWeights reports whether w sums to one within tol, is non-negative and
// respects maxWeight when it is positive.
func ValidWeights(w []float64, maxWeight, tol float64) bool {
	if len(w) == 0 {
		return false
	}
	sum := 0.0
	for _, v := range w {
		if math.IsNaN(v) || v < -tol {
			return false
		}
		if maxWeight > 0 && v > maxWeight+tol {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= tol
}

// Turnover is the L1 distance between two weight vectors.
func Turnover(prev, next []float64) float64 {
	total := 0.0
	for i := range next {
		p := 0.0
		if i < len(prev) {
			p = prev[i]
		}
		total += math.Abs(next[i] - p)
	}
	return total
}

// WeightPath is the realised holdings history: one weight vector per date,
// piecewise constant between rebalances.
type WeightPath struct {
	Assets  []string
	Dates   []time.Time
	Weights [][]float64
}

// Append records the holdings in force on a date.
func (p *WeightPath) Append(date time.Time, w []float64) {
	p.Dates = append(p.Dates, date)
	p.Weights = append(p.Weights, w)
}

// Len returns the number of recorded dates.
func (p *WeightPath) Len() int {
	return len(p.Dates)
}

// At returns the weights for asset on each date.
func (p *WeightPath) At(asset string) []float64 {
	idx := -1
	for i, a := range p.Assets {
		if a == asset {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(p.Weights))
	for t, w := range p.Weights {
		out[t] = w[idx]
	}
	return out
}
