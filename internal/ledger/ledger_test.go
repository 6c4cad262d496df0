package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"autotraderv1/internal/model"
)

const eps = 1e-6

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func newTestLedger() *Ledger {
	return New(DefaultConfig())
}

func mustBuy(t *testing.T, l *Ledger, symbol string, qty int64) model.Order {
	t.Helper()
	id, err := l.PlaceOrder(OrderRequest{Symbol: symbol, Quantity: qty, Side: model.SideBuy, Type: model.OrderMarket})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	o, ok := l.Order(id)
	if !ok {
		t.Fatalf("order %s not found", id)
	}
	if o.Status != model.StatusFilled {
		t.Fatalf("buy not filled: %s (%s)", o.Status, o.RejectReason)
	}
	return o
}

func TestMarketBuyAppliesSlippageAndCommission(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)

	o := mustBuy(t, l, "AAPL", 100)

	if !approx(o.FilledPrice, 150.15) {
		t.Errorf("executed price = %.4f, want 150.15", o.FilledPrice)
	}
	if !approx(o.Commission, 5.0) {
		t.Errorf("commission = %.4f, want 5.0 (minimum)", o.Commission)
	}

	acct := l.AccountInfo()
	wantCash := 100000.0 - (100*150.15 + 5.0)
	if !approx(acct.Cash, wantCash) {
		t.Errorf("cash = %.4f, want %.4f", acct.Cash, wantCash)
	}

	pos, ok := l.Position("AAPL")
	if !ok {
		t.Fatal("position missing after buy")
	}
	if pos.Quantity != 100 || !approx(pos.AvgPrice, 150.15) {
		t.Errorf("position = qty %d avg %.4f, want qty 100 avg 150.15", pos.Quantity, pos.AvgPrice)
	}
}

func TestCommissionScalesAboveMinimum(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 10.0)

	o := mustBuy(t, l, "AAPL", 5000)
	// 5000 * 0.003 = 15.0, above the 5.0 floor.
	if !approx(o.Commission, 15.0) {
		t.Errorf("commission = %.4f, want 15.0", o.Commission)
	}
}

func TestSellRealizesPnLAndKeepsAvgPrice(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)

	l.UpdatePrice("AAPL", 160.0)
	id, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 50, Side: model.SideSell, Type: model.OrderMarket})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	o, _ := l.Order(id)
	if o.Status != model.StatusFilled {
		t.Fatalf("sell not filled: %s (%s)", o.Status, o.RejectReason)
	}

	executed := 160.0 * (1 - 0.001)
	wantRealized := (executed-150.15)*50 - 5.0
	if got := l.RealizedPnL(); !approx(got, wantRealized) {
		t.Errorf("realized pnl = %.4f, want %.4f", got, wantRealized)
	}

	pos, ok := l.Position("AAPL")
	if !ok {
		t.Fatal("position missing after partial close")
	}
	if pos.Quantity != 50 {
		t.Errorf("remaining qty = %d, want 50", pos.Quantity)
	}
	if !approx(pos.AvgPrice, 150.15) {
		t.Errorf("avg price changed on sell: %.4f, want 150.15", pos.AvgPrice)
	}
}

func TestFullCloseRemovesPosition(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)

	if _, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 100, Side: model.SideSell, Type: model.OrderMarket}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if _, ok := l.Position("AAPL"); ok {
		t.Error("position still present after full close")
	}
	if n := len(l.Positions()); n != 0 {
		t.Errorf("positions count = %d, want 0", n)
	}
}

func TestBuyAveragesCostBasis(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)

	l.UpdatePrice("AAPL", 160.0)
	mustBuy(t, l, "AAPL", 100)

	pos, _ := l.Position("AAPL")
	want := (150.15*100 + 160.16*100) / 200
	if pos.Quantity != 200 || !approx(pos.AvgPrice, want) {
		t.Errorf("position = qty %d avg %.4f, want qty 200 avg %.4f", pos.Quantity, pos.AvgPrice, want)
	}
}

func TestOversellRejectedWithoutMutation(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)
	cashBefore := l.AccountInfo().Cash

	id, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 150, Side: model.SideSell, Type: model.OrderMarket})
	if err != nil {
		t.Fatalf("oversell must not return an error, got %v", err)
	}
	o, _ := l.Order(id)
	if o.Status != model.StatusRejected {
		t.Fatalf("oversell status = %s, want rejected", o.Status)
	}
	if o.RejectReason == "" {
		t.Error("rejected order carries no reason")
	}

	pos, _ := l.Position("AAPL")
	if pos.Quantity != 100 {
		t.Errorf("position mutated by rejected sell: qty %d", pos.Quantity)
	}
	if got := l.AccountInfo().Cash; !approx(got, cashBefore) {
		t.Errorf("cash mutated by rejected sell: %.4f != %.4f", got, cashBefore)
	}
}

func TestBuyRejectedOnInsufficientFunds(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)

	id, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 10000, Side: model.SideBuy, Type: model.OrderMarket})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	o, _ := l.Order(id)
	if o.Status != model.StatusRejected {
		t.Fatalf("status = %s, want rejected", o.Status)
	}
	if got := l.AccountInfo().Cash; !approx(got, 100000.0) {
		t.Errorf("cash = %.4f, want 100000 untouched", got)
	}
}

func TestMarketOrderRejectedWithoutPrice(t *testing.T) {
	l := newTestLedger()

	id, err := l.PlaceOrder(OrderRequest{Symbol: "MSFT", Quantity: 10, Side: model.SideBuy, Type: model.OrderMarket})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	o, _ := l.Order(id)
	if o.Status != model.StatusRejected {
		t.Errorf("status = %s, want rejected when no price is known", o.Status)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	l := newTestLedger()
	cases := []struct {
		name string
		req  OrderRequest
	}{
		{"zero quantity", OrderRequest{Symbol: "AAPL", Quantity: 0, Side: model.SideBuy, Type: model.OrderMarket}},
		{"negative quantity", OrderRequest{Symbol: "AAPL", Quantity: -5, Side: model.SideBuy, Type: model.OrderMarket}},
		{"bad side", OrderRequest{Symbol: "AAPL", Quantity: 10, Side: "short", Type: model.OrderMarket}},
		{"bad type", OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: "iceberg"}},
		{"limit without price", OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderLimit}},
		{"stop without price", OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideSell, Type: model.OrderStop}},
		{"stop_limit missing stop", OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderStopLimit, LimitPrice: 100}},
	}
	for _, tc := range cases {
		if _, err := l.PlaceOrder(tc.req); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s: err = %v, want ErrInvalidParameter", tc.name, err)
		}
	}
	if n := len(l.Orders("")); n != 0 {
		t.Errorf("validation failures recorded %d orders, want 0", n)
	}
}

func TestLimitBuyTriggersOnPriceDrop(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)

	id, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderLimit, LimitPrice: 145.0})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if o, _ := l.Order(id); o.Status != model.StatusPending {
		t.Fatalf("limit order status = %s, want pending", o.Status)
	}

	l.UpdatePrice("AAPL", 146.0)
	if o, _ := l.Order(id); o.Status != model.StatusPending {
		t.Fatalf("limit triggered above the limit price")
	}

	l.UpdatePrice("AAPL", 144.0)
	o, _ := l.Order(id)
	if o.Status != model.StatusFilled {
		t.Fatalf("limit order status = %s, want filled at 144", o.Status)
	}
	if !approx(o.FilledPrice, 144.0*1.001) {
		t.Errorf("executed = %.4f, want %.4f", o.FilledPrice, 144.0*1.001)
	}
}

func TestStopSellTriggersOnPriceDrop(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)

	id, err := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 100, Side: model.SideSell, Type: model.OrderStop, StopPrice: 140.0})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	l.UpdatePrice("AAPL", 141.0)
	if o, _ := l.Order(id); o.Status != model.StatusPending {
		t.Fatal("stop sell triggered above the stop price")
	}

	l.UpdatePrice("AAPL", 139.5)
	if o, _ := l.Order(id); o.Status != model.StatusFilled {
		t.Fatalf("stop sell status = %s, want filled", o.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)

	id, _ := l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderLimit, LimitPrice: 100.0})
	if !l.CancelOrder(id) {
		t.Fatal("cancel of a pending order failed")
	}
	if o, _ := l.Order(id); o.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
	if l.CancelOrder(id) {
		t.Error("second cancel succeeded on a terminal order")
	}
	if l.CancelOrder("nope") {
		t.Error("cancel of an unknown order succeeded")
	}

	filled := mustBuy(t, l, "AAPL", 10)
	if l.CancelOrder(filled.OrderID) {
		t.Error("cancel of a filled order succeeded")
	}

	// Cancelled orders never trigger.
	l.UpdatePrice("AAPL", 90.0)
	if o, _ := l.Order(id); o.Status != model.StatusCancelled {
		t.Errorf("cancelled order re-activated: %s", o.Status)
	}
}

func TestFilledTodayCountsCalendarDay(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 10)
	mustBuy(t, l, "AAPL", 10)

	if n := l.FilledToday(time.Now()); n != 2 {
		t.Errorf("FilledToday = %d, want 2", n)
	}
	if n := l.FilledToday(time.Now().AddDate(0, 0, 1)); n != 0 {
		t.Errorf("FilledToday tomorrow = %d, want 0", n)
	}
}

func TestOrdersStatusFilter(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 10)
	l.PlaceOrder(OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderLimit, LimitPrice: 100.0})

	if n := len(l.Orders("")); n != 2 {
		t.Errorf("all orders = %d, want 2", n)
	}
	if n := len(l.Orders(model.StatusPending)); n != 1 {
		t.Errorf("pending orders = %d, want 1", n)
	}
	if n := len(l.Orders(model.StatusFilled)); n != 1 {
		t.Errorf("filled orders = %d, want 1", n)
	}
}

func TestAccountTotalValueMarksToMarket(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	mustBuy(t, l, "AAPL", 100)

	l.UpdatePrice("AAPL", 160.0)
	acct := l.AccountInfo()
	wantCash := 100000.0 - (100*150.15 + 5.0)
	want := wantCash + 100*160.0
	if !approx(acct.TotalValue, want) {
		t.Errorf("total value = %.4f, want %.4f", acct.TotalValue, want)
	}
}

func TestFillCallbackPanicDoesNotAbortMatching(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)

	var got []model.Order
	l.OnFill(func(model.Order) { panic("boom") })
	l.OnFill(func(o model.Order) { got = append(got, o) })

	o := mustBuy(t, l, "AAPL", 10)
	if len(got) != 1 || got[0].OrderID != o.OrderID {
		t.Fatalf("second callback saw %d fills, want the one fill", len(got))
	}
}

func TestPortfolioSummary(t *testing.T) {
	l := newTestLedger()
	l.UpdatePrice("AAPL", 150.0)
	l.UpdatePrice("MSFT", 300.0)
	mustBuy(t, l, "AAPL", 10)
	mustBuy(t, l, "MSFT", 10)

	s := l.PortfolioSummary()
	if s.PositionsCount != 2 || s.OrdersCount != 2 {
		t.Errorf("summary counts = %d positions %d orders, want 2/2", s.PositionsCount, s.OrdersCount)
	}
	if len(s.Positions) != 2 || s.Positions[0].Symbol != "AAPL" {
		t.Errorf("positions not sorted by symbol: %+v", s.Positions)
	}
	if len(s.RecentOrders) != 2 {
		t.Errorf("recent orders = %d, want 2", len(s.RecentOrders))
	}
}
