package marketfeed

import (
	"context"
	"math/rand"
	"sync"
)

// SimQuoter generates a random-walk price series per symbol. It serves
// offline runs and tests where no market-data connectivity exists.
type SimQuoter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64

	// StartPrice seeds a symbol on first request.
	StartPrice float64
	// StepBps is the max per-poll move in basis points.
	StepBps float64
	// BaseVolume is the per-poll volume centre.
	BaseVolume int64
}

// NewSimQuoter creates a deterministic-seedable sim quoter.
func NewSimQuoter(seed int64) *SimQuoter {
	return &SimQuoter{
		rng:        rand.New(rand.NewSource(seed)),
		prices:     make(map[string]float64),
		StartPrice: 100.0,
		StepBps:    30,
		BaseVolume: 120000,
	}
}

func (s *SimQuoter) Quote(ctx context.Context, symbol string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prices[symbol]
	if !ok {
		p = s.StartPrice
	}
	// Random walk: up to ±StepBps per poll.
	move := (s.rng.Float64()*2 - 1) * s.StepBps / 10000
	p *= 1 + move
	s.prices[symbol] = p

	vol := s.BaseVolume/2 + s.rng.Int63n(s.BaseVolume)
	return Quote{
		Price:  p,
		Volume: vol,
		High:   p * 1.002,
		Low:    p * 0.998,
	}, nil
}

func (s *SimQuoter) AverageVolume(ctx context.Context, symbol string) (float64, error) {
	return float64(s.BaseVolume), nil
}

// SetPrice pins the next quote for a symbol, for tests and replays.
func (s *SimQuoter) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}
