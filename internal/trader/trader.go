// Package trader is the orchestrator of the trading core. A Trader owns
// the ledger, risk engine, market feed and scheduler, wires the alert and
// trade callback registries, runs the minute-granularity decision loop,
// and exposes the external control surface (Start / Stop / ManualTrade /
// Status).
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autotraderv1/internal/ledger"
	"autotraderv1/internal/marketfeed"
	"autotraderv1/internal/metrics"
	"autotraderv1/internal/model"
	"autotraderv1/internal/risk"
	"autotraderv1/internal/scheduler"
)

// Task names registered with the scheduler.
const (
	TaskMarketAnalysis = "market_analysis"
	TaskRiskCheck      = "risk_check"
	TaskStopLossCheck  = "stop_loss_check"
	TaskDailyReport    = "daily_report"
)

// Config holds the controller's wiring parameters.
type Config struct {
	Watchlist []string

	AnalysisInterval  time.Duration
	RiskCheckInterval time.Duration
	StopCheckInterval time.Duration
	ReportHour        int
	ReportMinute      int

	LoopInterval time.Duration // decision loop cadence
	LoopBackoff  time.Duration // pause after a failed iteration
	StopTimeout  time.Duration // bounded wait for the loop on Stop

	EnableAutoTrading    bool
	EnableRiskManagement bool
	EnableMonitoring     bool
}

// DefaultConfig returns the stock controller parameters for a watchlist.
func DefaultConfig(watchlist []string) Config {
	return Config{
		Watchlist:            watchlist,
		AnalysisInterval:     30 * time.Minute,
		RiskCheckInterval:    5 * time.Minute,
		StopCheckInterval:    time.Minute,
		ReportHour:           15,
		ReportMinute:         30,
		LoopInterval:         time.Minute,
		LoopBackoff:          time.Minute,
		StopTimeout:          5 * time.Second,
		EnableAutoTrading:    true,
		EnableRiskManagement: true,
		EnableMonitoring:     true,
	}
}

// TradeEvent is emitted to trade callbacks whenever an order reaches a
// terminal state through the controller or an async fill.
type TradeEvent struct {
	OrderID   string            `json:"order_id"`
	Symbol    string            `json:"symbol"`
	Side      model.Side        `json:"side"`
	Quantity  int64             `json:"quantity"`
	Price     float64           `json:"price"`
	Status    model.OrderStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AlertEvent is the unified alert shape fanned out to alert callbacks.
// Kind is "price" for feed anomalies and "risk" for limit breaches.
type AlertEvent struct {
	Kind      string    `json:"kind"`
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Severity  string    `json:"severity,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyStats accumulates per-session counters, reset by the daily report.
type DailyStats struct {
	Date   string `json:"date"`
	Orders int    `json:"orders"`
	Trades int    `json:"trades"`
	Alerts int    `json:"alerts"`
}

// Status is the aggregated snapshot returned by GetStatus.
type Status struct {
	Running        bool                     `json:"running"`
	Halted         bool                     `json:"halted"`
	Account        model.Account            `json:"account"`
	PositionsCount int                      `json:"positions_count"`
	OrdersCount    int                      `json:"orders_count"`
	PendingOrders  int                      `json:"pending_orders"`
	DailyStats     DailyStats               `json:"daily_stats"`
	RiskSummary    risk.Summary             `json:"risk_summary"`
	MarketSummary  marketfeed.MarketSummary `json:"market_summary"`
	SchedulerTasks int                      `json:"scheduler_tasks"`
}

// Trader is the automated-trading controller.
type Trader struct {
	cfg    Config
	ledger *ledger.Ledger
	risk   *risk.Engine
	feed   *marketfeed.Feed
	sched  *scheduler.Scheduler
	source SignalSource
	met    *metrics.Metrics
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	halted   bool // entries suspended after a daily-loss breach
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stats    DailyStats

	alertCbs []func(AlertEvent)
	tradeCbs []func(TradeEvent)
}

// New creates a Trader owning the given components and wires the
// cross-component callbacks: feed snapshots mark the ledger to market,
// and feed/risk alerts fan out through the controller's registry.
// met may be nil.
func New(cfg Config, l *ledger.Ledger, r *risk.Engine, f *marketfeed.Feed, s *scheduler.Scheduler, source SignalSource, met *metrics.Metrics) *Trader {
	t := &Trader{
		cfg:    cfg,
		ledger: l,
		risk:   r,
		feed:   f,
		sched:  s,
		source: source,
		met:    met,
		logger: slog.Default().With(slog.String("component", "trader")),
		stats:  DailyStats{Date: today(time.Now())},
	}

	f.OnSnapshot(func(snap model.MarketSnapshot) {
		l.UpdatePrice(snap.Symbol, snap.Price)
	})
	f.OnAlert(t.handlePriceAlert)
	r.OnAlert(t.handleRiskAlert)
	l.OnFill(t.handleFill)
	return t
}

// OnAlert registers an alert callback. Consumers must not block; panics
// are caught and logged.
func (t *Trader) OnAlert(cb func(AlertEvent)) {
	t.mu.Lock()
	t.alertCbs = append(t.alertCbs, cb)
	t.mu.Unlock()
}

// OnTrade registers a trade callback.
func (t *Trader) OnTrade(cb func(TradeEvent)) {
	t.mu.Lock()
	t.tradeCbs = append(t.tradeCbs, cb)
	t.mu.Unlock()
}

// Start wires the scheduled tasks, starts the feed and scheduler, and
// launches the decision loop. Calling Start on a running trader is a
// no-op.
func (t *Trader) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.logger.Warn("already running")
		return
	}
	t.running = true
	t.halted = false
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.loopDone = make(chan struct{})
	t.mu.Unlock()

	t.risk.StartSession()

	if t.cfg.EnableMonitoring {
		t.feed.Start(t.ctx)
	}
	t.registerTasks()
	t.sched.Start()

	go t.decisionLoop()
	t.logger.Info("started", slog.Int("watchlist", len(t.cfg.Watchlist)))
}

// Stop signals the decision loop and feed to terminate, stops the
// scheduler, and waits a bounded time for the loop to exit. Safe to call
// from any goroutine; idempotent.
func (t *Trader) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	done := t.loopDone
	t.mu.Unlock()

	cancel()
	t.feed.Stop()
	t.sched.Stop()

	select {
	case <-done:
		t.logger.Info("stopped")
	case <-time.After(t.cfg.StopTimeout):
		// Loop considered stuck; surface it rather than hang forever.
		t.logger.Error("decision loop did not exit within timeout",
			slog.Duration("timeout", t.cfg.StopTimeout))
	}
}

// Running reports whether the controller is active.
func (t *Trader) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Halted reports whether new entries are suspended by the daily-loss
// policy.
func (t *Trader) Halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted
}

// ManualTrade places an order outside the signal path. It still passes
// through the risk engine before reaching the ledger.
func (t *Trader) ManualTrade(symbol string, quantity int64, side model.Side, orderType model.OrderType) (string, error) {
	price := t.referencePrice(symbol)

	if t.cfg.EnableRiskManagement {
		if err := t.risk.ValidateSignal(symbol, side, quantity, price); err != nil {
			t.met.RiskDenial("manual")
			return "", err
		}
	}
	id, err := t.place(symbol, quantity, side, orderType, "manual trade")
	if err != nil {
		return "", err
	}
	t.logger.Info("manual trade placed",
		slog.String("symbol", symbol), slog.String("side", string(side)), slog.String("order_id", id))
	return id, nil
}

// GetStatus returns the aggregated system snapshot.
func (t *Trader) GetStatus() Status {
	t.mu.Lock()
	running, halted, stats := t.running, t.halted, t.stats
	t.mu.Unlock()

	account := t.ledger.AccountInfo()
	return Status{
		Running:        running,
		Halted:         halted,
		Account:        account,
		PositionsCount: len(t.ledger.Positions()),
		OrdersCount:    len(t.ledger.Orders("")),
		PendingOrders:  len(t.ledger.Orders(model.StatusPending)),
		DailyStats:     stats,
		RiskSummary:    t.risk.GetSummary(),
		MarketSummary:  t.feed.Summary(),
		SchedulerTasks: t.sched.TaskCount(),
	}
}

func (t *Trader) registerTasks() {
	cal := t.sched.Calendar()

	t.sched.Add(TaskMarketAnalysis, t.task(TaskMarketAnalysis, t.runMarketAnalysis), scheduler.IntervalTrigger{
		Every:           t.cfg.AnalysisInterval,
		MarketHoursOnly: true,
		Calendar:        cal,
	})
	t.sched.Add(TaskRiskCheck, t.task(TaskRiskCheck, t.runRiskCheck), scheduler.IntervalTrigger{
		Every: t.cfg.RiskCheckInterval,
	})
	t.sched.Add(TaskStopLossCheck, t.task(TaskStopLossCheck, t.runStopLossCheck), scheduler.IntervalTrigger{
		Every: t.cfg.StopCheckInterval,
	})
	t.sched.Add(TaskDailyReport, t.task(TaskDailyReport, t.runDailyReport), scheduler.DailyTrigger{
		Hour:   t.cfg.ReportHour,
		Minute: t.cfg.ReportMinute,
		Loc:    cal.Loc,
	})
}

// task wraps a scheduled callback with its run counter.
func (t *Trader) task(name string, fn func()) scheduler.Task {
	return func() {
		t.met.TaskRun(name)
		fn()
	}
}

// decisionLoop wakes once per LoopInterval. During the trading session it
// evaluates signals; otherwise it logs the next open. A failed iteration
// is logged and the loop continues after a fixed backoff: a single bad
// cycle must never terminate the controller.
func (t *Trader) decisionLoop() {
	defer close(t.loopDone)

	ticker := time.NewTicker(t.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case now := <-ticker.C:
			if !t.iterate(now) {
				select {
				case <-t.ctx.Done():
					return
				case <-time.After(t.cfg.LoopBackoff):
				}
			}
		}
	}
}

// iterate runs one decision-loop body, recovering any panic. Returns
// false when the iteration failed and the loop should back off.
func (t *Trader) iterate(now time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.met.LoopFailure()
			t.logger.Error("decision loop iteration failed", slog.Any("panic", r))
			ok = false
		}
	}()

	open := t.sched.IsMarketOpen(now)
	t.met.SetMarketOpen(open)
	if open {
		t.evaluateSignals()
	} else {
		t.logger.Info("market closed",
			slog.Time("next_open", t.sched.Calendar().NextOpen(now)))
	}

	account := t.ledger.AccountInfo()
	t.met.SetAccountValue(account.TotalValue)
	t.met.SetOpenPositions(len(t.ledger.Positions()))
	return true
}

// evaluateSignals runs the signal source over the watchlist and places
// approved orders.
func (t *Trader) evaluateSignals() {
	if !t.cfg.EnableAutoTrading {
		return
	}
	t.mu.Lock()
	halted := t.halted
	ctx := t.ctx
	t.mu.Unlock()
	if halted {
		t.logger.Warn("entries suspended by daily-loss policy, skipping signals")
		return
	}

	for _, symbol := range t.cfg.Watchlist {
		sig, err := t.source.Evaluate(ctx, symbol)
		if err != nil {
			t.logger.Error("signal evaluation failed",
				slog.String("symbol", symbol), slog.Any("err", err))
			continue
		}
		if sig == nil {
			continue
		}

		price := sig.Price
		if price <= 0 {
			price = t.referencePrice(symbol)
		}
		if t.cfg.EnableRiskManagement {
			if err := t.risk.ValidateSignal(sig.Symbol, sig.Side, sig.Quantity, price); err != nil {
				t.met.RiskDenial("signal")
				t.logger.Warn("signal denied", slog.String("symbol", symbol), slog.Any("err", err))
				continue
			}
		}
		if _, err := t.place(sig.Symbol, sig.Quantity, sig.Side, model.OrderMarket, sig.Reason); err != nil {
			t.logger.Error("order placement failed",
				slog.String("symbol", symbol), slog.Any("err", err))
		}
	}
}

// place submits an order to the ledger and accounts for the outcome.
// Fills surface through the ledger fill callback; rejections are emitted
// here so every placement produces exactly one trade event.
func (t *Trader) place(symbol string, quantity int64, side model.Side, orderType model.OrderType, reason string) (string, error) {
	id, err := t.ledger.PlaceOrder(ledger.OrderRequest{
		Symbol:   symbol,
		Quantity: quantity,
		Side:     side,
		Type:     orderType,
	})
	if err != nil {
		return "", fmt.Errorf("place %s %s %s: %w", side, orderType, symbol, err)
	}
	t.logger.Debug("order submitted",
		slog.String("order_id", id),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("reason", reason))

	t.mu.Lock()
	t.stats.Orders++
	t.mu.Unlock()

	if o, ok := t.ledger.Order(id); ok {
		t.met.Order(string(o.Status))
		if o.Status == model.StatusRejected {
			t.emitTrade(TradeEvent{
				OrderID:   o.OrderID,
				Symbol:    o.Symbol,
				Side:      o.Side,
				Quantity:  o.Quantity,
				Status:    o.Status,
				Reason:    o.RejectReason,
				Timestamp: o.UpdatedAt,
			})
		}
	}
	return id, nil
}

func (t *Trader) runMarketAnalysis() {
	summary := t.feed.Summary()
	t.logger.Info("market analysis",
		slog.Int("symbols", summary.TotalSymbols),
		slog.Time("last_poll", summary.LastPoll))
	t.evaluateSignals()
}

// runRiskCheck enforces the daily-loss policy and sweeps stop levels.
// Halting is a controller decision: the risk engine only reports the
// breach.
func (t *Trader) runRiskCheck() {
	if !t.cfg.EnableRiskManagement {
		return
	}
	if !t.risk.CheckDailyLossLimit() {
		t.mu.Lock()
		already := t.halted
		t.halted = true
		t.mu.Unlock()
		if !already {
			t.logger.Error("daily loss limit breached, suspending new entries")
		}
	}
	t.runStopLossCheck()
}

// runStopLossCheck executes the close instructions from the risk scan.
func (t *Trader) runStopLossCheck() {
	for _, inst := range t.risk.CheckStopLossTakeProfit() {
		id, err := t.place(inst.Symbol, inst.Quantity, model.SideSell, model.OrderMarket, inst.Reason)
		if err != nil {
			t.logger.Error("close instruction failed",
				slog.String("symbol", inst.Symbol), slog.Any("err", err))
			continue
		}
		if o, ok := t.ledger.Order(id); ok && o.Status == model.StatusFilled {
			t.risk.ClearLevels(inst.Symbol)
		}
		t.logger.Info("position close placed",
			slog.String("symbol", inst.Symbol),
			slog.String("reason", inst.Reason),
			slog.String("order_id", id))
	}
}

// Report is the end-of-day summary produced by the daily report task.
type Report struct {
	Date          string  `json:"date"`
	StartValue    float64 `json:"start_value"`
	CurrentValue  float64 `json:"current_value"`
	DailyPnL      float64 `json:"daily_pnl"`
	DailyPnLRatio float64 `json:"daily_pnl_ratio"`
	Orders        int     `json:"orders"`
	Trades        int     `json:"trades"`
	Alerts        int     `json:"alerts"`
	Positions     int     `json:"positions"`
	CashRemaining float64 `json:"cash_remaining"`
}

func (t *Trader) runDailyReport() {
	r := t.DailyReport()
	t.logger.Info("daily report",
		slog.String("date", r.Date),
		slog.Float64("total_value", r.CurrentValue),
		slog.Float64("daily_pnl", r.DailyPnL),
		slog.Int("orders", r.Orders),
		slog.Int("trades", r.Trades),
		slog.Int("alerts", r.Alerts))

	// Roll the session: reset counters, re-baseline the loss limit,
	// and lift a halt for the next day.
	t.mu.Lock()
	t.stats = DailyStats{Date: today(time.Now().AddDate(0, 0, 1))}
	t.halted = false
	t.mu.Unlock()
	t.risk.StartSession()
}

// DailyReport builds the end-of-day summary without side effects.
func (t *Trader) DailyReport() Report {
	account := t.ledger.AccountInfo()

	t.mu.Lock()
	stats := t.stats
	t.mu.Unlock()

	start := t.risk.GetSummary().SessionStart
	r := Report{
		Date:          stats.Date,
		StartValue:    start,
		CurrentValue:  account.TotalValue,
		DailyPnL:      account.TotalValue - start,
		Orders:        stats.Orders,
		Trades:        stats.Trades,
		Alerts:        stats.Alerts,
		Positions:     len(t.ledger.Positions()),
		CashRemaining: account.Cash,
	}
	if start > 0 {
		r.DailyPnLRatio = r.DailyPnL / start
	}
	return r
}

func (t *Trader) handleFill(o model.Order) {
	t.mu.Lock()
	t.stats.Trades++
	t.mu.Unlock()
	t.met.Trade(string(o.Side))

	t.emitTrade(TradeEvent{
		OrderID:   o.OrderID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.FilledQty,
		Price:     o.FilledPrice,
		Status:    o.Status,
		Timestamp: o.UpdatedAt,
	})
}

func (t *Trader) handlePriceAlert(a marketfeed.PriceAlert) {
	t.mu.Lock()
	t.stats.Alerts++
	t.mu.Unlock()

	t.emitAlert(AlertEvent{
		Kind:      "price",
		Type:      a.Type,
		Symbol:    a.Symbol,
		Message:   a.Message,
		Timestamp: a.Timestamp,
	})
}

func (t *Trader) handleRiskAlert(a risk.Alert) {
	t.mu.Lock()
	t.stats.Alerts++
	t.mu.Unlock()
	t.met.Alert("risk", a.Type)

	t.emitAlert(AlertEvent{
		Kind:      "risk",
		Type:      a.Type,
		Symbol:    a.Symbol,
		Severity:  string(a.Severity),
		Message:   a.Message,
		Timestamp: a.Timestamp,
	})
}

func (t *Trader) emitAlert(ev AlertEvent) {
	t.mu.Lock()
	cbs := make([]func(AlertEvent), len(t.alertCbs))
	copy(cbs, t.alertCbs)
	t.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("alert callback panic", slog.Any("panic", r))
				}
			}()
			cb(ev)
		}()
	}
}

func (t *Trader) emitTrade(ev TradeEvent) {
	t.mu.Lock()
	cbs := make([]func(TradeEvent), len(t.tradeCbs))
	copy(cbs, t.tradeCbs)
	t.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("trade callback panic", slog.Any("panic", r))
				}
			}()
			cb(ev)
		}()
	}
}

// referencePrice returns the best known price for risk checks: the feed's
// latest sample, falling back to the ledger's last mark.
func (t *Trader) referencePrice(symbol string) float64 {
	if p, ok := t.feed.LatestPrice(symbol); ok {
		return p
	}
	if p, ok := t.ledger.LastPrice(symbol); ok {
		return p
	}
	return 0
}

func today(t time.Time) string {
	return t.Format("2006-01-02")
}
