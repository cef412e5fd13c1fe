package domain

import (
	"context"
	"time"
)

// PanelProvider yields price panels for a ticker set and date range.
// Fetching and caching are the provider's own concern.
type PanelProvider interface {
	// Panel returns one column per symbol over the union of available dates
	// in [start, end]. A zero start or end leaves that side open.
	Panel(ctx context.Context, symbols []string, start, end time.Time) (*PricePanel, error)
}
