package historical

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aristath/portfoliopilot/internal/database"
	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:", Name: "history"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func bar(c float64) domain.Bar {
	b := domain.MissingBar()
	b.Close = c
	b.AdjClose = c
	return b
}

func TestStore_UpsertPanelRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Upsert(ctx, "AAA", []DatedBar{
		{Date: day("2024-01-02"), Bar: bar(10)},
		{Date: day("2024-01-03"), Bar: bar(11)},
		{Date: day("2024-01-04"), Bar: bar(12)},
	}))
	require.NoError(t, store.Upsert(ctx, "BBB", []DatedBar{
		{Date: day("2024-01-03"), Bar: bar(50)},
		{Date: day("2024-01-05"), Bar: bar(51)},
	}))

	panel, err := store.Panel(ctx, []string{"BBB", "AAA"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, panel.Validate())

	assert.Equal(t, []string{"BBB", "AAA"}, panel.Assets)
	require.Equal(t, 4, panel.Len())
	assert.Equal(t, day("2024-01-02"), panel.Dates[0])
	assert.Equal(t, day("2024-01-05"), panel.Dates[3])

	assert.True(t, math.IsNaN(panel.Bars[0][0].Close), "BBB not listed yet")
	assert.Equal(t, 50.0, panel.Bars[0][1].Close)
	assert.True(t, math.IsNaN(panel.Bars[0][2].Close))
	assert.Equal(t, 12.0, panel.Bars[1][2].AdjClose)
	assert.True(t, math.IsNaN(panel.Bars[1][3].AdjClose), "AAA has no bar on the last date")
	assert.True(t, math.IsNaN(panel.Bars[1][0].Volume), "missing fields survive storage")
}

func TestStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Upsert(ctx, "AAA", []DatedBar{{Date: day("2024-01-02"), Bar: bar(10)}}))
	require.NoError(t, store.Upsert(ctx, "AAA", []DatedBar{{Date: day("2024-01-02"), Bar: bar(20)}}))

	panel, err := store.Panel(ctx, []string{"AAA"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, panel.Len())
	assert.Equal(t, 20.0, panel.Bars[0][0].Close)
}

func TestStore_PanelRange(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var bars []DatedBar
	for i, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		bars = append(bars, DatedBar{Date: day(d), Bar: bar(float64(100 + i))})
	}
	require.NoError(t, store.Upsert(ctx, "AAA", bars))

	panel, err := store.Panel(ctx, []string{"AAA"}, day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-03"), day("2024-01-04")}, panel.Dates)
	assert.Equal(t, 101.0, panel.Bars[0][0].Close)
}

func TestStore_PanelErrors(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.Upsert(ctx, "AAA", []DatedBar{{Date: day("2024-01-02"), Bar: bar(10)}}))

	_, err := store.Panel(ctx, []string{"AAA", "ZZZ"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = store.Panel(ctx, nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = store.Panel(ctx, []string{"AAA", "AAA"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, domain.ErrMalformedInput, "duplicate symbols")

	assert.ErrorIs(t, store.Upsert(ctx, "", nil), domain.ErrMalformedInput)
}

func TestStore_Symbols(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)

	require.NoError(t, store.Upsert(ctx, "BBB", []DatedBar{{Date: day("2024-01-02"), Bar: bar(1)}}))
	require.NoError(t, store.Upsert(ctx, "AAA", []DatedBar{{Date: day("2024-01-02"), Bar: bar(1)}}))

	symbols, err = store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, symbols)
}

func TestStore_ImportCSV(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	body := "date,open,high,low,close,adj_close,volume\n" +
		"2024-01-03,10,11,9,10.5,10.4,1000\n" +
		"2024-01-02,9,10,8,9.5,9.4,\n"

	n, err := store.ImportCSV(ctx, strings.NewReader(body), "AAA")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	panel, err := store.Panel(ctx, []string{"AAA"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, panel.Len())
	assert.Equal(t, 9.4, panel.Bars[0][0].AdjClose)
	assert.True(t, math.IsNaN(panel.Bars[0][0].Volume))
	assert.Equal(t, 1000.0, panel.Bars[0][1].Volume)

	_, err = store.ImportCSV(ctx, strings.NewReader("date,close\n"), "BBB")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}
