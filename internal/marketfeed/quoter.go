package marketfeed

import "context"

// Quote is one sampled price/volume observation from the external data
// source.
type Quote struct {
	Price  float64
	Volume int64
	High   float64
	Low    float64
}

// Quoter is the external market-data boundary the feed polls against.
// Implementations may block on network I/O; the feed never calls them
// while holding its lock.
type Quoter interface {
	// Quote returns the latest observation for symbol.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// AverageVolume returns the trailing average daily volume for
	// symbol, used as the spike-detection baseline.
	AverageVolume(ctx context.Context, symbol string) (float64, error)
}
