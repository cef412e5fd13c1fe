package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceFrame(rows ...[]float64) *Frame {
	f := &Frame{Assets: []string{"A", "B"}}
	start := day("2024-01-01")
	for i, r := range rows {
		f.Dates = append(f.Dates, start.AddDate(0, 0, i))
		f.Rows = append(f.Rows, r)
	}
	return f
}

func TestReturns(t *testing.T) {
	nan := math.NaN()

	t.Run("simple percentage change", func(t *testing.T) {
		r := Returns(priceFrame([]float64{100, 50}, []float64{110, 55}, []float64{99, 55}))
		require.Equal(t, 2, r.Len())
		assert.InDelta(t, 0.10, r.Rows[0][0], 1e-12)
		assert.InDelta(t, 0.10, r.Rows[0][1], 1e-12)
		assert.InDelta(t, -0.10, r.Rows[1][0], 1e-12)
		assert.InDelta(t, 0.0, r.Rows[1][1], 1e-12)
	})

	t.Run("late listing stays missing", func(t *testing.T) {
		r := Returns(priceFrame([]float64{100, nan}, []float64{101, nan}, []float64{102, 10}, []float64{103, 11}))
		require.Equal(t, 3, r.Len())
		assert.True(t, math.IsNaN(r.Rows[0][1]))
		assert.True(t, math.IsNaN(r.Rows[1][1]))
		assert.InDelta(t, 0.1, r.Rows[2][1], 1e-12)
	})

	t.Run("gaps carry the last price forward", func(t *testing.T) {
		r := Returns(priceFrame([]float64{100, 10}, []float64{nan, 11}, []float64{110, 12}))
		require.Equal(t, 2, r.Len())
		assert.InDelta(t, 0.0, r.Rows[0][0], 1e-12)
		assert.InDelta(t, 0.1, r.Rows[1][0], 1e-12)
	})

	t.Run("all-missing rows dropped", func(t *testing.T) {
		r := Returns(priceFrame([]float64{nan, nan}, []float64{nan, nan}, []float64{1, 2}, []float64{2, 4}))
		require.Equal(t, 1, r.Len())
		assert.Equal(t, day("2024-01-04"), r.Dates[0])
	})

	t.Run("too short", func(t *testing.T) {
		assert.True(t, Returns(priceFrame([]float64{1, 2})).Empty())
	})
}

func TestFrame_Window(t *testing.T) {
	f := priceFrame([]float64{1, 1}, []float64{2, 2}, []float64{3, 3}, []float64{4, 4})

	w := f.Window(2, 2)
	require.Equal(t, 2, w.Len())
	assert.Equal(t, 2.0, w.Rows[0][0])
	assert.Equal(t, 3.0, w.Rows[1][0])

	assert.Equal(t, 3, f.Window(2, 10).Len())
	assert.Equal(t, 0, f.Window(-1, 3).Len())

	assert.Equal(t, 1, f.IndexAtOrBefore(day("2024-01-02").Add(time.Hour)))
	assert.Equal(t, -1, f.IndexAtOrBefore(day("2023-12-31")))
}

func TestFrame_Covariance(t *testing.T) {
	nan := math.NaN()
	f := priceFrame(
		[]float64{0.01, 0.02},
		[]float64{0.03, nan},
		[]float64{-0.01, 0.00},
		[]float64{0.02, 0.04},
	)
	cov := f.Covariance()

	// Variance of A over all four rows.
	assert.InDelta(t, 0.000291666, cov.At(0, 0), 1e-8)
	// Pairwise rows 0, 2, 3 only.
	assert.InDelta(t, 0.0004, cov.At(1, 1), 1e-9)
	assert.InDelta(t, cov.At(0, 1), cov.At(1, 0), 0)

	mean := f.Mean()
	assert.InDelta(t, 0.0125, mean[0], 1e-12)
	assert.InDelta(t, 0.02, mean[1], 1e-12)
}

func TestFrame_CovarianceTooFewRows(t *testing.T) {
	f := priceFrame([]float64{0.01, 0.02})
	assert.True(t, math.IsNaN(f.Covariance().At(0, 0)))
}
