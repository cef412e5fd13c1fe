package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"already normalised", []float64{0.25, 0.75}, []float64{0.25, 0.75}},
		{"rescaled", []float64{1, 3}, []float64{0.25, 0.75}},
		{"negatives clipped", []float64{-1, 1, 1}, []float64{0, 0.5, 0.5}},
		{"zero total is uniform", []float64{0, 0, 0, 0}, []float64{0.25, 0.25, 0.25, 0.25}},
		{"nan dropped", []float64{math.NaN(), 2}, []float64{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
			assert.True(t, ValidWeights(got, 0, WeightTolerance))
		})
	}
}

func TestValidWeights(t *testing.T) {
	assert.True(t, ValidWeights([]float64{0.4, 0.6}, 0, WeightTolerance))
	assert.True(t, ValidWeights([]float64{0.4, 0.6}, 0.6, WeightTolerance))
	assert.False(t, ValidWeights([]float64{0.4, 0.6}, 0.5, WeightTolerance))
	assert.False(t, ValidWeights([]float64{-0.1, 1.1}, 0, WeightTolerance))
	assert.False(t, ValidWeights([]float64{0.4, 0.5}, 0, WeightTolerance))
	assert.False(t, ValidWeights(nil, 0, WeightTolerance))
}

func TestTurnover(t *testing.T) {
	assert.InDelta(t, 0.0, Turnover([]float64{0.5, 0.5}, []float64{0.5, 0.5}), 1e-12)
	assert.InDelta(t, 1.0, Turnover([]float64{1, 0}, []float64{0.5, 0.5}), 1e-12)
	assert.InDelta(t, 1.0, Turnover(nil, []float64{0.5, 0.5}), 1e-12)
}

func TestWeightPath(t *testing.T) {
	p := WeightPath{Assets: []string{"A", "B"}}
	p.Append(day("2024-01-02"), []float64{0.5, 0.5})
	p.Append(day("2024-01-03"), []float64{0.2, 0.8})

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []float64{0.5, 0.8}, p.At("B"))
	assert.Nil(t, p.At("C"))
}

func TestEqualWeights(t *testing.T) {
	assert.Empty(t, EqualWeights(0))
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, EqualWeights(3), 1e-15)
}
