package trader

import (
	"context"

	"autotraderv1/internal/marketfeed"
	"autotraderv1/internal/model"
)

// Signal is a trading recommendation for one symbol. The trader treats
// the producer as opaque: anything implementing SignalSource can drive
// it, from the simple momentum source below to an external reasoning
// pipeline.
type Signal struct {
	Symbol     string
	Side       model.Side
	Quantity   int64
	Price      float64 // reference price; 0 = use latest sampled price
	Confidence float64
	Reason     string
}

// SignalSource produces at most one recommendation per symbol per
// evaluation. Returning (nil, nil) means no action.
type SignalSource interface {
	Evaluate(ctx context.Context, symbol string) (*Signal, error)
}

// SignalFunc adapts a plain function to the SignalSource interface.
type SignalFunc func(ctx context.Context, symbol string) (*Signal, error)

func (f SignalFunc) Evaluate(ctx context.Context, symbol string) (*Signal, error) {
	return f(ctx, symbol)
}

// MomentumSource is a minimal built-in source: buy when the sampled
// price rose more than Threshold over the last Lookback snapshots.
type MomentumSource struct {
	Feed      *marketfeed.Feed
	Lookback  int     // snapshots considered, e.g. 10
	Threshold float64 // fractional rise, e.g. 0.02
	Quantity  int64   // shares per signal
}

// NewMomentumSource creates a momentum source with stock parameters.
func NewMomentumSource(feed *marketfeed.Feed) *MomentumSource {
	return &MomentumSource{Feed: feed, Lookback: 10, Threshold: 0.02, Quantity: 10}
}

func (m *MomentumSource) Evaluate(ctx context.Context, symbol string) (*Signal, error) {
	history := m.Feed.History(symbol, 60)
	if len(history) < m.Lookback {
		return nil, nil
	}
	recent := history[len(history)-m.Lookback:]
	first, last := recent[0].Price, recent[len(recent)-1].Price
	if first <= 0 {
		return nil, nil
	}
	change := (last - first) / first
	if change <= m.Threshold {
		return nil, nil
	}
	return &Signal{
		Symbol:     symbol,
		Side:       model.SideBuy,
		Quantity:   m.Quantity,
		Price:      last,
		Confidence: change,
		Reason:     "momentum: price up over lookback window",
	}, nil
}
