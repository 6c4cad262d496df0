package marketfeed

import (
	"context"
	"fmt"

	"github.com/piquette/finance-go/quote"
)

// YahooQuoter fetches live quotes from Yahoo Finance.
type YahooQuoter struct{}

// NewYahooQuoter creates a Yahoo-backed quoter.
func NewYahooQuoter() *YahooQuoter {
	return &YahooQuoter{}
}

func (y *YahooQuoter) Quote(ctx context.Context, symbol string) (Quote, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: yahoo quote %s: %v", ErrExternalFetch, symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: yahoo returned no price for %s", ErrExternalFetch, symbol)
	}
	return Quote{
		Price:  q.RegularMarketPrice,
		Volume: int64(q.RegularMarketVolume),
		High:   q.RegularMarketDayHigh,
		Low:    q.RegularMarketDayLow,
	}, nil
}

func (y *YahooQuoter) AverageVolume(ctx context.Context, symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: yahoo baseline %s: %v", ErrExternalFetch, symbol, err)
	}
	if q == nil || q.AverageDailyVolume3Month <= 0 {
		return 0, fmt.Errorf("%w: yahoo returned no average volume for %s", ErrExternalFetch, symbol)
	}
	return float64(q.AverageDailyVolume3Month), nil
}
