package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func closeBar(v float64) Bar {
	b := MissingBar()
	b.Close = v
	return b
}

func TestPricePanel_Validate(t *testing.T) {
	dates := []time.Time{day("2024-01-02"), day("2024-01-03")}

	t.Run("valid", func(t *testing.T) {
		p := NewPricePanel([]string{"A", "B"}, dates)
		assert.NoError(t, p.Validate())
	})

	t.Run("unsorted dates", func(t *testing.T) {
		p := NewPricePanel([]string{"A"}, []time.Time{dates[1], dates[0]})
		assert.ErrorIs(t, p.Validate(), ErrMalformedInput)
	})

	t.Run("duplicate dates", func(t *testing.T) {
		p := NewPricePanel([]string{"A"}, []time.Time{dates[0], dates[0]})
		assert.ErrorIs(t, p.Validate(), ErrMalformedInput)
	})

	t.Run("short bar column", func(t *testing.T) {
		p := NewPricePanel([]string{"A"}, dates)
		p.Bars[0] = p.Bars[0][:1]
		assert.ErrorIs(t, p.Validate(), ErrMalformedInput)
	})

	t.Run("asset count mismatch", func(t *testing.T) {
		p := NewPricePanel([]string{"A"}, dates)
		p.Assets = append(p.Assets, "B")
		assert.ErrorIs(t, p.Validate(), ErrMalformedInput)
	})

	t.Run("duplicate asset", func(t *testing.T) {
		p := NewPricePanel([]string{"A", "A"}, dates)
		assert.ErrorIs(t, p.Validate(), ErrMalformedInput)
	})
}

func TestPricePanel_Prices(t *testing.T) {
	dates := []time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-04")}
	p := NewPricePanel([]string{"ADJ", "RAW"}, dates)

	p.Bars[0][0] = Bar{Close: 10, AdjClose: 9}
	p.Bars[0][2] = Bar{Close: 11, AdjClose: 10}
	p.Bars[1][0] = closeBar(20)
	p.Bars[1][2] = closeBar(21)

	prices := p.Prices()
	require.Equal(t, 2, prices.Len(), "all-missing row is dropped")
	assert.Equal(t, []float64{9, 20}, prices.Rows[0])
	assert.Equal(t, []float64{10, 21}, prices.Rows[1])
	assert.Equal(t, dates[2], prices.Dates[1])
}

func TestPricePanel_PricesEmpty(t *testing.T) {
	var p *PricePanel
	assert.Equal(t, 0, p.Prices().Len())
	assert.NoError(t, p.Validate())
	assert.True(t, math.IsNaN(MissingBar().Close))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDate("29/02/2024")
	assert.ErrorIs(t, err, ErrMalformedInput)
}
