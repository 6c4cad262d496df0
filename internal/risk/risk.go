// Package risk validates proposed trades against configured limits and
// independently scans open positions for stop-loss / take-profit
// triggers. The engine never places orders itself: scans return close
// instructions and the caller decides whether to execute them.
package risk

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"autotraderv1/internal/ledger"
	"autotraderv1/internal/model"
)

// ErrDenied marks a signal blocked by a risk check before it could reach
// the ledger.
var ErrDenied = errors.New("risk denied")

// Config holds the risk limits. A Config is an immutable snapshot: the
// engine replaces it wholesale on Reconfigure and never mutates fields
// while a concurrent check is reading them.
type Config struct {
	MaxPositionPerStock float64       // max notional per symbol
	MaxPortfolioRisk    float64       // max exposure as fraction of total value
	MaxDailyLoss        float64       // max daily loss as fraction of session start
	StopLossRatio       float64       // stop = avg cost * (1 - ratio)
	TakeProfitRatio     float64       // target = avg cost * (1 + ratio)
	MaxOrdersPerDay     int
	MinOrderInterval    time.Duration // minimum gap between approved orders
}

// DefaultConfig returns conservative default limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionPerStock: 20000.0,
		MaxPortfolioRisk:    0.25,
		MaxDailyLoss:        0.03,
		StopLossRatio:       0.08,
		TakeProfitRatio:     0.25,
		MaxOrdersPerDay:     20,
		MinOrderInterval:    time.Minute,
	}
}

// Severity classifies a risk alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a risk event emitted to registered callbacks. Alerts are
// ephemeral: they are delivered once and not retained.
type Alert struct {
	Type            string    `json:"type"` // position_limit, portfolio_exposure, ...
	Symbol          string    `json:"symbol"`
	Message         string    `json:"message"`
	Severity        Severity  `json:"severity"`
	SuggestedAction string    `json:"suggested_action"`
	Timestamp       time.Time `json:"timestamp"`
}

// CloseInstruction tells the caller to close a position. Emitting an
// instruction has no side effect on the ledger.
type CloseInstruction struct {
	Symbol   string
	Quantity int64
	Reason   string // stop_loss or take_profit
	Trigger  float64
	Price    float64 // mark price at scan time
}

// Engine evaluates trades and positions against a Config snapshot.
type Engine struct {
	mu         sync.Mutex
	ledger     *ledger.Ledger
	cfg        Config
	stopLoss   map[string]float64
	takeProfit map[string]float64

	sessionStart float64 // account total value at session start
	lastApproved time.Time

	alertCbs []func(Alert)
}

// New creates a risk engine bound to a ledger.
func New(l *ledger.Ledger, cfg Config) *Engine {
	e := &Engine{
		ledger:     l,
		cfg:        cfg,
		stopLoss:   make(map[string]float64),
		takeProfit: make(map[string]float64),
	}
	e.StartSession()
	return e
}

// Reconfigure replaces the limit snapshot wholesale.
func (e *Engine) Reconfigure(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	log.Printf("[risk] limits reconfigured")
}

// Config returns the current limit snapshot.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// OnAlert registers an alert callback. Callbacks run outside the engine
// lock; panics are caught and logged.
func (e *Engine) OnAlert(cb func(Alert)) {
	e.mu.Lock()
	e.alertCbs = append(e.alertCbs, cb)
	e.mu.Unlock()
}

// StartSession captures the current account total value as the daily-loss
// baseline. Call at system start and again at each daily rollover.
func (e *Engine) StartSession() {
	total := e.ledger.AccountInfo().TotalValue
	e.mu.Lock()
	e.sessionStart = total
	e.mu.Unlock()
	log.Printf("[risk] session baseline captured: %.2f", total)
}

// ValidateSignal checks a proposed trade against all limits. The first
// failing check short-circuits, emits its alert, and the signal is denied
// with ErrDenied; the checks run in a fixed order: position limit,
// portfolio exposure, daily order count, cash sufficiency, order spacing.
func (e *Engine) ValidateSignal(symbol string, side model.Side, quantity int64, price float64) error {
	e.mu.Lock()
	cfg := e.cfg
	lastApproved := e.lastApproved
	e.mu.Unlock()

	now := time.Now()
	notional := float64(quantity) * price

	if side == model.SideBuy && notional > cfg.MaxPositionPerStock {
		e.trigger(Alert{
			Type:            "position_limit",
			Symbol:          symbol,
			Message:         fmt.Sprintf("buy notional %.2f exceeds per-symbol cap %.2f", notional, cfg.MaxPositionPerStock),
			Severity:        SeverityMedium,
			SuggestedAction: "reduce quantity or pick another symbol",
			Timestamp:       now,
		})
		return fmt.Errorf("%w: position limit", ErrDenied)
	}

	account := e.ledger.AccountInfo()
	if side == model.SideBuy && account.TotalValue > 0 {
		existing := 0.0
		if pos, ok := e.ledger.Position(symbol); ok {
			existing = pos.MarketValue
		}
		exposure := (existing + notional) / account.TotalValue
		if exposure > cfg.MaxPortfolioRisk {
			e.trigger(Alert{
				Type:            "portfolio_exposure",
				Symbol:          symbol,
				Message:         fmt.Sprintf("resulting exposure %.1f%% exceeds limit %.1f%%", exposure*100, cfg.MaxPortfolioRisk*100),
				Severity:        SeverityHigh,
				SuggestedAction: "reduce trade size or overall exposure",
				Timestamp:       now,
			})
			return fmt.Errorf("%w: portfolio exposure", ErrDenied)
		}
	}

	if filled := e.ledger.FilledToday(now); filled >= cfg.MaxOrdersPerDay {
		e.trigger(Alert{
			Type:            "daily_order_limit",
			Symbol:          "ALL",
			Message:         fmt.Sprintf("daily order count %d reached the cap %d", filled, cfg.MaxOrdersPerDay),
			Severity:        SeverityMedium,
			SuggestedAction: "wait for the next trading day",
			Timestamp:       now,
		})
		return fmt.Errorf("%w: daily order limit", ErrDenied)
	}

	if side == model.SideBuy {
		// The estimated cost includes a 0.3% commission buffer.
		cost := notional * 1.003
		if account.Cash < cost {
			e.trigger(Alert{
				Type:            "insufficient_cash",
				Symbol:          symbol,
				Message:         fmt.Sprintf("need ~%.2f, have %.2f", cost, account.Cash),
				Severity:        SeverityHigh,
				SuggestedAction: "reduce quantity or free cash by closing positions",
				Timestamp:       now,
			})
			return fmt.Errorf("%w: insufficient cash", ErrDenied)
		}
	}

	if cfg.MinOrderInterval > 0 && !lastApproved.IsZero() && now.Sub(lastApproved) < cfg.MinOrderInterval {
		e.trigger(Alert{
			Type:            "order_interval",
			Symbol:          symbol,
			Message:         fmt.Sprintf("last order approved %s ago, minimum interval is %s", now.Sub(lastApproved).Round(time.Second), cfg.MinOrderInterval),
			Severity:        SeverityLow,
			SuggestedAction: "wait before placing the next order",
			Timestamp:       now,
		})
		return fmt.Errorf("%w: order interval", ErrDenied)
	}

	e.mu.Lock()
	e.lastApproved = now
	e.mu.Unlock()
	return nil
}

// CheckStopLossTakeProfit scans open positions against the configured
// stop / target prices. Pure scan: the caller places the closing orders.
func (e *Engine) CheckStopLossTakeProfit() []CloseInstruction {
	positions := e.ledger.Positions()

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []CloseInstruction
	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}
		if stop, ok := e.stopLoss[pos.Symbol]; ok && pos.CurrentPrice <= stop {
			log.Printf("[risk] %s stop-loss hit: price %.2f <= %.2f", pos.Symbol, pos.CurrentPrice, stop)
			out = append(out, CloseInstruction{
				Symbol:   pos.Symbol,
				Quantity: pos.Quantity,
				Reason:   "stop_loss",
				Trigger:  stop,
				Price:    pos.CurrentPrice,
			})
			continue
		}
		if target, ok := e.takeProfit[pos.Symbol]; ok && pos.CurrentPrice >= target {
			log.Printf("[risk] %s take-profit hit: price %.2f >= %.2f", pos.Symbol, pos.CurrentPrice, target)
			out = append(out, CloseInstruction{
				Symbol:   pos.Symbol,
				Quantity: pos.Quantity,
				Reason:   "take_profit",
				Trigger:  target,
				Price:    pos.CurrentPrice,
			})
		}
	}
	return out
}

// CheckDailyLossLimit compares the current total value against the
// session-start baseline. On breach it emits a critical alert and returns
// false; suspending trading is the caller's decision.
func (e *Engine) CheckDailyLossLimit() bool {
	total := e.ledger.AccountInfo().TotalValue

	e.mu.Lock()
	baseline := e.sessionStart
	maxLoss := e.cfg.MaxDailyLoss
	e.mu.Unlock()

	if baseline <= 0 {
		return true
	}
	ratio := (total - baseline) / baseline
	if ratio <= -maxLoss {
		e.trigger(Alert{
			Type:            "daily_loss_limit",
			Symbol:          "ALL",
			Message:         fmt.Sprintf("daily loss %.2f%% breaches the %.2f%% limit", -ratio*100, maxLoss*100),
			Severity:        SeverityCritical,
			SuggestedAction: "suspend trading for the rest of the session",
			Timestamp:       time.Now(),
		})
		return false
	}
	return true
}

// SetStopLoss sets the stop price for a symbol.
func (e *Engine) SetStopLoss(symbol string, price float64) {
	e.mu.Lock()
	e.stopLoss[symbol] = price
	e.mu.Unlock()
	log.Printf("[risk] stop-loss for %s set to %.2f", symbol, price)
}

// SetTakeProfit sets the target price for a symbol.
func (e *Engine) SetTakeProfit(symbol string, price float64) {
	e.mu.Lock()
	e.takeProfit[symbol] = price
	e.mu.Unlock()
	log.Printf("[risk] take-profit for %s set to %.2f", symbol, price)
}

// ClearLevels removes the stop / target for a symbol, typically after the
// position has been closed.
func (e *Engine) ClearLevels(symbol string) {
	e.mu.Lock()
	delete(e.stopLoss, symbol)
	delete(e.takeProfit, symbol)
	e.mu.Unlock()
}

// AutoSetRiskLevels derives stop and target prices from the cost basis of
// every open position, using the configured ratios.
func (e *Engine) AutoSetRiskLevels() {
	positions := e.ledger.Positions()

	e.mu.Lock()
	for _, pos := range positions {
		e.stopLoss[pos.Symbol] = pos.AvgPrice * (1 - e.cfg.StopLossRatio)
		e.takeProfit[pos.Symbol] = pos.AvgPrice * (1 + e.cfg.TakeProfitRatio)
	}
	e.mu.Unlock()
	log.Printf("[risk] levels derived for %d positions", len(positions))
}

// StopLevels returns copies of the stop / target tables.
func (e *Engine) StopLevels() (stopLoss, takeProfit map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stopLoss = make(map[string]float64, len(e.stopLoss))
	takeProfit = make(map[string]float64, len(e.takeProfit))
	for k, v := range e.stopLoss {
		stopLoss[k] = v
	}
	for k, v := range e.takeProfit {
		takeProfit[k] = v
	}
	return stopLoss, takeProfit
}

// PositionRatio describes one symbol's share of the portfolio.
type PositionRatio struct {
	Value         float64 `json:"value"`
	Ratio         float64 `json:"ratio"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Summary is a point-in-time risk overview.
type Summary struct {
	Account            model.Account            `json:"account"`
	TotalPositions     int                      `json:"total_positions"`
	TotalPositionValue float64                  `json:"total_position_value"`
	CashRatio          float64                  `json:"cash_ratio"`
	PositionRatios     map[string]PositionRatio `json:"position_ratios"`
	StopLossCount      int                      `json:"stop_loss_count"`
	TakeProfitCount    int                      `json:"take_profit_count"`
	SessionStart       float64                  `json:"session_start"`
	Config             Config                   `json:"config"`
}

// GetSummary returns the current risk overview.
func (e *Engine) GetSummary() Summary {
	account := e.ledger.AccountInfo()
	positions := e.ledger.Positions()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		Account:         account,
		TotalPositions:  len(positions),
		PositionRatios:  make(map[string]PositionRatio, len(positions)),
		StopLossCount:   len(e.stopLoss),
		TakeProfitCount: len(e.takeProfit),
		SessionStart:    e.sessionStart,
		Config:          e.cfg,
	}
	for _, pos := range positions {
		s.TotalPositionValue += pos.MarketValue
		if account.TotalValue > 0 {
			s.PositionRatios[pos.Symbol] = PositionRatio{
				Value:         pos.MarketValue,
				Ratio:         pos.MarketValue / account.TotalValue,
				UnrealizedPnL: pos.UnrealizedPnL,
			}
		}
	}
	if account.TotalValue > 0 {
		s.CashRatio = account.Cash / account.TotalValue
	}
	return s
}

// trigger delivers an alert to every registered callback, isolating
// panics so a broken subscriber cannot abort the validation path.
func (e *Engine) trigger(alert Alert) {
	log.Printf("[risk] alert [%s] %s: %s", alert.Severity, alert.Type, alert.Message)

	e.mu.Lock()
	cbs := make([]func(Alert), len(e.alertCbs))
	copy(cbs, e.alertCbs)
	e.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[risk] alert callback panic: %v", r)
				}
			}()
			cb(alert)
		}()
	}
}
