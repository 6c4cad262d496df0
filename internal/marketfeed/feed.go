// Package marketfeed samples external price/volume data for a watchlist,
// keeps a bounded per-symbol snapshot history, and raises anomaly alerts
// (sharp price change, gap up/down, volume spike).
//
// The external fetch always happens outside the feed lock; callbacks are
// panic-isolated so a broken subscriber cannot kill the poll loop.
package marketfeed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"autotraderv1/internal/metrics"
	"autotraderv1/internal/model"
	"autotraderv1/internal/ringbuf"
)

// ErrExternalFetch marks a failed poll against the external data source.
// The cycle is logged and retried next interval; history is untouched.
var ErrExternalFetch = errors.New("external fetch failed")

// Alert types raised by the anomaly detectors.
const (
	AlertPriceChange = "price_change"
	AlertGapUp       = "gap_up"
	AlertGapDown     = "gap_down"
	AlertVolumeSpike = "volume_spike"
)

// PriceAlert is a market anomaly event. Ephemeral: delivered once to each
// registered callback, never stored.
type PriceAlert struct {
	Symbol        string    `json:"symbol"`
	Type          string    `json:"type"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousPrice float64   `json:"previous_price"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
}

// Config holds the feed's sampling and detection parameters.
type Config struct {
	Watchlist            []string
	PollInterval         time.Duration
	PriceChangeThreshold float64 // percent, e.g. 3.0
	VolumeSpikeThreshold float64 // multiple of baseline, e.g. 2.0
	GapThreshold         float64 // percent vs. two cycles back, e.g. 2.0
	HistorySize          int     // retained snapshots per symbol
	DefaultBaseline      float64 // volume baseline fallback
}

// DefaultConfig returns the stock sampling parameters for a watchlist.
func DefaultConfig(watchlist []string) Config {
	return Config{
		Watchlist:            watchlist,
		PollInterval:         time.Minute,
		PriceChangeThreshold: 3.0,
		VolumeSpikeThreshold: 2.0,
		GapThreshold:         2.0,
		HistorySize:          100,
		DefaultBaseline:      100000,
	}
}

// Feed is the market monitor.
type Feed struct {
	cfg    Config
	quoter Quoter
	met    *metrics.Metrics

	mu       sync.Mutex
	history  map[string]*ringbuf.Ring
	baseline map[string]float64
	running  bool
	lastPoll time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	alertCbs    []func(PriceAlert)
	snapshotCbs []func(model.MarketSnapshot)
}

// New creates a Feed over the given quoter. met may be nil.
func New(cfg Config, quoter Quoter, met *metrics.Metrics) *Feed {
	f := &Feed{
		cfg:      cfg,
		quoter:   quoter,
		met:      met,
		history:  make(map[string]*ringbuf.Ring, len(cfg.Watchlist)),
		baseline: make(map[string]float64, len(cfg.Watchlist)),
	}
	for _, symbol := range cfg.Watchlist {
		f.history[symbol] = ringbuf.New(cfg.HistorySize)
	}
	return f
}

// OnAlert registers an anomaly callback.
func (f *Feed) OnAlert(cb func(PriceAlert)) {
	f.mu.Lock()
	f.alertCbs = append(f.alertCbs, cb)
	f.mu.Unlock()
}

// OnSnapshot registers a callback invoked for every accepted snapshot.
// This is the push side of the price-feed boundary (e.g. marking the
// ledger to market).
func (f *Feed) OnSnapshot(cb func(model.MarketSnapshot)) {
	f.mu.Lock()
	f.snapshotCbs = append(f.snapshotCbs, cb)
	f.mu.Unlock()
}

// Start refreshes the volume baselines and launches the poll loop.
// Calling Start on a running feed is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		log.Printf("[feed] already running")
		return
	}
	f.running = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.RefreshBaseline(ctx)

	f.wg.Add(1)
	go f.loop(ctx)
	log.Printf("[feed] started, %d symbols every %s", len(f.cfg.Watchlist), f.cfg.PollInterval)
}

// Stop signals the poll loop and waits for it to exit. Idempotent.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
	log.Printf("[feed] stopped")
}

// Running reports whether the poll loop is active.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Feed) loop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll runs one sampling cycle over the whole watchlist. A failed fetch
// for one symbol is logged and skipped; it never corrupts history or
// stops the cycle.
func (f *Feed) Poll(ctx context.Context) {
	now := time.Now()
	for _, symbol := range f.cfg.Watchlist {
		q, err := f.quoter.Quote(ctx, symbol)
		if err != nil {
			f.met.FeedError()
			log.Printf("[feed] poll %s: %v", symbol, err)
			continue
		}
		f.ingest(symbol, q, now)
	}
	f.met.FeedPoll()

	f.mu.Lock()
	f.lastPoll = now
	f.mu.Unlock()
}

// ingest appends the snapshot and runs the three detectors. Each detector
// is independent and may fire in the same cycle.
func (f *Feed) ingest(symbol string, q Quote, now time.Time) {
	f.mu.Lock()
	ring := f.history[symbol]
	if ring == nil {
		ring = ringbuf.New(f.cfg.HistorySize)
		f.history[symbol] = ring
	}

	snap := model.MarketSnapshot{
		Symbol: symbol,
		TS:     now,
		Price:  q.Price,
		Volume: q.Volume,
		High:   q.High,
		Low:    q.Low,
	}
	if prev, ok := ring.Latest(); ok && prev.Price > 0 {
		snap.ChangePercent = (q.Price - prev.Price) / prev.Price * 100
	}
	if base := f.baseline[symbol]; base > 0 {
		snap.VolumeRatio = float64(q.Volume) / base
	}

	var alerts []PriceAlert

	if math.Abs(snap.ChangePercent) >= f.cfg.PriceChangeThreshold && ring.Len() > 0 {
		prev, _ := ring.Latest()
		alerts = append(alerts, PriceAlert{
			Symbol:        symbol,
			Type:          AlertPriceChange,
			CurrentPrice:  q.Price,
			PreviousPrice: prev.Price,
			ChangePercent: snap.ChangePercent,
			Timestamp:     now,
			Message:       fmt.Sprintf("%s moved %.2f%% in one cycle", symbol, snap.ChangePercent),
		})
	}

	// Gap detection compares against the snapshot two cycles back.
	if ref, ok := ring.Back(1); ok && ref.Price > 0 {
		gap := (q.Price - ref.Price) / ref.Price * 100
		if gap >= f.cfg.GapThreshold {
			alerts = append(alerts, PriceAlert{
				Symbol:        symbol,
				Type:          AlertGapUp,
				CurrentPrice:  q.Price,
				PreviousPrice: ref.Price,
				ChangePercent: gap,
				Timestamp:     now,
				Message:       fmt.Sprintf("%s gapped up %.2f%%", symbol, gap),
			})
		} else if gap <= -f.cfg.GapThreshold {
			alerts = append(alerts, PriceAlert{
				Symbol:        symbol,
				Type:          AlertGapDown,
				CurrentPrice:  q.Price,
				PreviousPrice: ref.Price,
				ChangePercent: gap,
				Timestamp:     now,
				Message:       fmt.Sprintf("%s gapped down %.2f%%", symbol, gap),
			})
		}
	}

	if snap.VolumeRatio >= f.cfg.VolumeSpikeThreshold && snap.VolumeRatio > 0 {
		alerts = append(alerts, PriceAlert{
			Symbol:        symbol,
			Type:          AlertVolumeSpike,
			CurrentPrice:  q.Price,
			PreviousPrice: q.Price,
			Timestamp:     now,
			Message:       fmt.Sprintf("%s volume %.1fx the baseline", symbol, snap.VolumeRatio),
		})
	}

	ring.Push(snap)
	alertCbs := make([]func(PriceAlert), len(f.alertCbs))
	copy(alertCbs, f.alertCbs)
	snapCbs := make([]func(model.MarketSnapshot), len(f.snapshotCbs))
	copy(snapCbs, f.snapshotCbs)
	f.mu.Unlock()

	for _, cb := range snapCbs {
		safeSnapshot(cb, snap)
	}
	for _, a := range alerts {
		f.met.Alert("price", a.Type)
		log.Printf("[feed] alert %s: %s", a.Type, a.Message)
		for _, cb := range alertCbs {
			safeAlert(cb, a)
		}
	}
}

// RefreshBaseline re-fetches the trailing volume baseline for every
// watched symbol, falling back to the configured default on failure.
func (f *Feed) RefreshBaseline(ctx context.Context) {
	for _, symbol := range f.cfg.Watchlist {
		avg, err := f.quoter.AverageVolume(ctx, symbol)
		if err != nil || avg <= 0 {
			log.Printf("[feed] baseline for %s unavailable, using default %.0f", symbol, f.cfg.DefaultBaseline)
			avg = f.cfg.DefaultBaseline
		}
		f.mu.Lock()
		f.baseline[symbol] = avg
		f.mu.Unlock()
	}
}

// LatestPrice returns the most recent sampled price for a symbol.
func (f *Feed) LatestPrice(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ring := f.history[symbol]
	if ring == nil {
		return 0, false
	}
	snap, ok := ring.Latest()
	if !ok {
		return 0, false
	}
	return snap.Price, true
}

// History returns the retained snapshots for a symbol sampled within the
// last given number of minutes, oldest first.
func (f *Feed) History(symbol string, minutes int) []model.MarketSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	ring := f.history[symbol]
	if ring == nil {
		return nil
	}
	return ring.Since(time.Now().Add(-time.Duration(minutes) * time.Minute))
}

// SymbolSummary describes one watched symbol in the market summary.
type SymbolSummary struct {
	LatestPrice float64 `json:"latest_price"`
	DataPoints  int     `json:"data_points"`
}

// MarketSummary is a point-in-time view of the whole feed.
type MarketSummary struct {
	TotalSymbols int                      `json:"total_symbols"`
	Running      bool                     `json:"running"`
	LastPoll     time.Time                `json:"last_poll"`
	Symbols      map[string]SymbolSummary `json:"symbols"`
}

// Summary returns the current market summary.
func (f *Feed) Summary() MarketSummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := MarketSummary{
		TotalSymbols: len(f.cfg.Watchlist),
		Running:      f.running,
		LastPoll:     f.lastPoll,
		Symbols:      make(map[string]SymbolSummary, len(f.cfg.Watchlist)),
	}
	for _, symbol := range f.cfg.Watchlist {
		ring := f.history[symbol]
		if ring == nil || ring.Len() == 0 {
			continue
		}
		latest, _ := ring.Latest()
		s.Symbols[symbol] = SymbolSummary{LatestPrice: latest.Price, DataPoints: ring.Len()}
	}
	return s
}

func safeAlert(cb func(PriceAlert), a PriceAlert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[feed] alert callback panic: %v", r)
		}
	}()
	cb(a)
}

func safeSnapshot(cb func(model.MarketSnapshot), s model.MarketSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[feed] snapshot callback panic: %v", r)
		}
	}()
	cb(s)
}
