// Package ledger implements the in-memory simulated brokerage: account,
// positions, and the order book of this trading core. Market orders match
// synchronously with slippage and commission applied; limit and stop
// orders rest as pending and are re-evaluated on every price update.
//
// All mutating entry points are serialised by a single mutex per Ledger
// instance, held for the duration of the state transition and never
// across external I/O. Fill callbacks run after the lock is released.
package ledger

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotraderv1/internal/model"
)

// Config holds the simulation parameters of the ledger.
type Config struct {
	InitialCash        float64
	CommissionPerShare float64
	MinCommission      float64
	Slippage           float64 // fractional, e.g. 0.001 = 0.1%
}

// DefaultConfig returns the stock simulation parameters.
func DefaultConfig() Config {
	return Config{
		InitialCash:        100000.0,
		CommissionPerShare: 0.003,
		MinCommission:      5.0,
		Slippage:           0.001,
	}
}

// OrderRequest describes an order to be placed.
type OrderRequest struct {
	Symbol     string
	Quantity   int64
	Side       model.Side
	Type       model.OrderType
	LimitPrice float64 // required for limit / stop_limit
	StopPrice  float64 // required for stop / stop_limit
}

// Ledger is the simulated brokerage.
type Ledger struct {
	mu  sync.Mutex
	cfg Config

	account   model.Account
	positions map[string]*model.Position
	orders    map[string]*model.Order
	history   []*model.Order // creation order, never pruned
	prices    map[string]float64
	realized  float64 // realized P&L across closed positions

	fillCbs []func(model.Order)
}

// New creates a Ledger with the given simulation parameters.
func New(cfg Config) *Ledger {
	l := &Ledger{
		cfg: cfg,
		account: model.Account{
			AccountID:   "SIM-" + uuid.NewString()[:8],
			Cash:        cfg.InitialCash,
			TotalValue:  cfg.InitialCash,
			BuyingPower: cfg.InitialCash,
			Currency:    "CNY",
		},
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
		prices:    make(map[string]float64),
	}
	log.Printf("[ledger] initialised with cash %.2f", cfg.InitialCash)
	return l
}

// OnFill registers a callback invoked for every filled order. Callbacks
// run outside the ledger lock; a panicking callback is logged and never
// aborts matching.
func (l *Ledger) OnFill(cb func(model.Order)) {
	l.mu.Lock()
	l.fillCbs = append(l.fillCbs, cb)
	l.mu.Unlock()
}

// PlaceOrder validates and records an order. Market orders execute
// synchronously inside the call; limit and stop orders rest as pending.
//
// A validation failure returns ErrInvalidParameter before any state
// mutation. Matching failures (no price, insufficient funds or position)
// do not return an error: the order is recorded with status rejected and
// the reason is kept on the record.
func (l *Ledger) PlaceOrder(req OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidParameter, req.Quantity)
	}
	if !req.Side.Valid() {
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidParameter, req.Side)
	}
	if !req.Type.Valid() {
		return "", fmt.Errorf("%w: unknown order type %q", ErrInvalidParameter, req.Type)
	}
	switch req.Type {
	case model.OrderLimit:
		if req.LimitPrice <= 0 {
			return "", fmt.Errorf("%w: limit order requires a limit price", ErrInvalidParameter)
		}
	case model.OrderStop:
		if req.StopPrice <= 0 {
			return "", fmt.Errorf("%w: stop order requires a stop price", ErrInvalidParameter)
		}
	case model.OrderStopLimit:
		if req.LimitPrice <= 0 || req.StopPrice <= 0 {
			return "", fmt.Errorf("%w: stop_limit order requires limit and stop prices", ErrInvalidParameter)
		}
	}

	now := time.Now()
	o := &model.Order{
		OrderID:    uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	l.mu.Lock()
	l.orders[o.OrderID] = o
	l.history = append(l.history, o)

	var fills []model.Order
	if req.Type == model.OrderMarket {
		if l.execMarketLocked(o, now) {
			fills = append(fills, *o)
		}
	} else {
		log.Printf("[ledger] %s %s resting: %s qty=%d limit=%.2f stop=%.2f",
			o.Type, o.Side, o.Symbol, o.Quantity, o.LimitPrice, o.StopPrice)
	}
	l.mu.Unlock()

	l.dispatchFills(fills)
	return o.OrderID, nil
}

// CancelOrder cancels a pending order. Returns false if the order does
// not exist or is already terminal.
func (l *Ledger) CancelOrder(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[id]
	if !ok {
		log.Printf("[ledger] cancel: unknown order %s", id)
		return false
	}
	if o.Status != model.StatusPending {
		log.Printf("[ledger] cancel refused: order %s is %s", id, o.Status)
		return false
	}
	o.Status = model.StatusCancelled
	o.UpdatedAt = time.Now()
	log.Printf("[ledger] order cancelled: %s", id)
	return true
}

// UpdatePrice records the latest price for a symbol and re-evaluates any
// resting limit/stop orders on that symbol. Triggered orders run through
// the market execution path.
func (l *Ledger) UpdatePrice(symbol string, price float64) {
	if price <= 0 {
		log.Printf("[ledger] ignoring non-positive price %.4f for %s", price, symbol)
		return
	}

	now := time.Now()
	l.mu.Lock()
	l.prices[symbol] = price
	fills := l.checkPendingLocked(symbol, now)
	l.mu.Unlock()

	l.dispatchFills(fills)
}

// LastPrice returns the latest known price for a symbol.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.prices[symbol]
	return p, ok
}

// AccountInfo returns the account with total value recomputed from the
// latest known prices.
func (l *Ledger) AccountInfo() model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(time.Now())
	return l.account
}

// Positions returns a mark-to-market snapshot of all open positions,
// sorted by symbol.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(time.Now())

	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the marked position for one symbol.
func (l *Ledger) Position(symbol string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	if price, known := l.prices[symbol]; known {
		p.MarkToMarket(price, time.Now())
	}
	return *p, true
}

// Orders returns copies of all orders, oldest first. A non-empty status
// filters the result.
func (l *Ledger) Orders(status model.OrderStatus) []model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Order, 0, len(l.history))
	for _, o := range l.history {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// Order returns a copy of a single order.
func (l *Ledger) Order(id string) (model.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// FilledToday counts orders filled on the calendar day of now, in now's
// location. Used for the daily order cap.
func (l *Ledger) FilledToday(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	y, m, d := now.Date()
	n := 0
	for _, o := range l.history {
		if o.Status != model.StatusFilled {
			continue
		}
		oy, om, od := o.UpdatedAt.In(now.Location()).Date()
		if oy == y && om == m && od == d {
			n++
		}
	}
	return n
}

// RealizedPnL returns the accumulated realized P&L across all closes,
// including closes of positions that no longer exist.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Summary is a point-in-time view of the whole portfolio.
type Summary struct {
	Account        model.Account    `json:"account"`
	PositionsCount int              `json:"positions_count"`
	OrdersCount    int              `json:"orders_count"`
	TotalPnL       float64          `json:"total_pnl"` // realized + unrealized
	Positions      []model.Position `json:"positions"`
	RecentOrders   []model.Order    `json:"recent_orders"`
}

// PortfolioSummary returns the account, marked positions, and the five
// most recent orders.
func (l *Ledger) PortfolioSummary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(time.Now())

	s := Summary{
		Account:        l.account,
		PositionsCount: len(l.positions),
		OrdersCount:    len(l.history),
		TotalPnL:       l.realized,
	}
	for _, p := range l.positions {
		s.TotalPnL += p.UnrealizedPnL
		s.Positions = append(s.Positions, *p)
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].Symbol < s.Positions[j].Symbol })

	n := len(l.history)
	for i := n - 1; i >= 0 && i >= n-5; i-- {
		s.RecentOrders = append(s.RecentOrders, *l.history[i])
	}
	return s
}

// execMarketLocked runs the market execution path for o: slippage,
// commission, balance checks, then cash and position mutation. Returns
// true when the order filled. Caller holds the lock.
func (l *Ledger) execMarketLocked(o *model.Order, now time.Time) bool {
	price, ok := l.prices[o.Symbol]
	if !ok {
		l.rejectLocked(o, ErrNoPriceAvailable.Error(), now)
		return false
	}

	var executed float64
	if o.Side == model.SideBuy {
		executed = price * (1 + l.cfg.Slippage)
	} else {
		executed = price * (1 - l.cfg.Slippage)
	}
	commission := float64(o.Quantity) * l.cfg.CommissionPerShare
	if commission < l.cfg.MinCommission {
		commission = l.cfg.MinCommission
	}

	if o.Side == model.SideBuy {
		cost := float64(o.Quantity)*executed + commission
		if l.account.Cash < cost {
			l.rejectLocked(o, fmt.Sprintf("%v: need %.2f, have %.2f", ErrInsufficientFunds, cost, l.account.Cash), now)
			return false
		}
		l.applyBuyLocked(o, executed, commission, now)
	} else {
		pos := l.positions[o.Symbol]
		if pos == nil || pos.Quantity < o.Quantity {
			held := int64(0)
			if pos != nil {
				held = pos.Quantity
			}
			l.rejectLocked(o, fmt.Sprintf("%v: selling %d, holding %d", ErrInsufficientPosition, o.Quantity, held), now)
			return false
		}
		l.applySellLocked(o, executed, commission, now)
	}

	o.Status = model.StatusFilled
	o.FilledQty = o.Quantity
	o.FilledPrice = executed
	o.Commission = commission
	o.UpdatedAt = now

	log.Printf("[ledger] filled %s %s %s qty=%d price=%.2f commission=%.2f",
		o.Side, o.Type, o.Symbol, o.Quantity, executed, commission)
	return true
}

func (l *Ledger) applyBuyLocked(o *model.Order, price, commission float64, now time.Time) {
	l.account.Cash -= float64(o.Quantity)*price + commission

	pos, ok := l.positions[o.Symbol]
	if !ok {
		pos = &model.Position{Symbol: o.Symbol}
		l.positions[o.Symbol] = pos
	}
	// Quantity-weighted running average cost basis.
	totalQty := pos.Quantity + o.Quantity
	totalCost := pos.AvgPrice*float64(pos.Quantity) + price*float64(o.Quantity)
	pos.AvgPrice = totalCost / float64(totalQty)
	pos.Quantity = totalQty
	pos.MarkToMarket(price, now)
}

func (l *Ledger) applySellLocked(o *model.Order, price, commission float64, now time.Time) {
	l.account.Cash += float64(o.Quantity)*price - commission

	pos := l.positions[o.Symbol]
	realized := (price-pos.AvgPrice)*float64(o.Quantity) - commission
	pos.RealizedPnL += realized
	l.realized += realized
	pos.Quantity -= o.Quantity
	if pos.Quantity == 0 {
		delete(l.positions, o.Symbol)
	} else {
		pos.MarkToMarket(price, now)
	}
}

func (l *Ledger) rejectLocked(o *model.Order, reason string, now time.Time) {
	o.Status = model.StatusRejected
	o.RejectReason = reason
	o.UpdatedAt = now
	log.Printf("[ledger] rejected %s %s %s qty=%d: %s", o.Side, o.Type, o.Symbol, o.Quantity, reason)
}

// checkPendingLocked re-evaluates resting orders on symbol against the
// latest price. Limit orders are checked before stop orders, matching
// order-of-arrival within each class via the history slice.
func (l *Ledger) checkPendingLocked(symbol string, now time.Time) []model.Order {
	price := l.prices[symbol]
	var fills []model.Order

	trigger := func(o *model.Order) {
		if l.execMarketLocked(o, now) {
			fills = append(fills, *o)
		}
	}

	for _, o := range l.history {
		if o.Status != model.StatusPending || o.Symbol != symbol || o.Type != model.OrderLimit {
			continue
		}
		if (o.Side == model.SideBuy && price <= o.LimitPrice) ||
			(o.Side == model.SideSell && price >= o.LimitPrice) {
			trigger(o)
		}
	}
	for _, o := range l.history {
		if o.Status != model.StatusPending || o.Symbol != symbol {
			continue
		}
		switch o.Type {
		case model.OrderStop:
			if (o.Side == model.SideBuy && price >= o.StopPrice) ||
				(o.Side == model.SideSell && price <= o.StopPrice) {
				trigger(o)
			}
		case model.OrderStopLimit:
			// Executes only once the stop has triggered and the limit
			// is still satisfied at the current price.
			if (o.Side == model.SideBuy && price >= o.StopPrice && price <= o.LimitPrice) ||
				(o.Side == model.SideSell && price <= o.StopPrice && price >= o.LimitPrice) {
				trigger(o)
			}
		}
	}
	return fills
}

// markLocked recomputes every position's mark price, market value and
// unrealized P&L, then the account totals. Caller holds the lock.
func (l *Ledger) markLocked(now time.Time) {
	total := l.account.Cash
	for symbol, pos := range l.positions {
		if price, ok := l.prices[symbol]; ok {
			pos.MarkToMarket(price, now)
		}
		total += pos.MarketValue
	}
	l.account.TotalValue = total
	l.account.BuyingPower = l.account.Cash
}

func (l *Ledger) dispatchFills(fills []model.Order) {
	if len(fills) == 0 {
		return
	}
	l.mu.Lock()
	cbs := make([]func(model.Order), len(l.fillCbs))
	copy(cbs, l.fillCbs)
	l.mu.Unlock()

	for _, fill := range fills {
		for _, cb := range cbs {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[ledger] fill callback panic: %v", r)
					}
				}()
				cb(fill)
			}()
		}
	}
}
