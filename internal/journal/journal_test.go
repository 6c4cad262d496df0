package journal

import (
	"path/filepath"
	"testing"
	"time"

	"autotraderv1/internal/model"
	"autotraderv1/internal/trader"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndReadBack(t *testing.T) {
	j := openTemp(t)

	ev := trader.TradeEvent{
		OrderID:   "o-1",
		Symbol:    "AAPL",
		Side:      model.SideBuy,
		Quantity:  100,
		Price:     150.15,
		Status:    model.StatusFilled,
		Timestamp: time.Now(),
	}
	if err := j.RecordTrade(ev); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	trades, err := j.Trades(10)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	got := trades[0]
	if got.OrderID != "o-1" || got.Symbol != "AAPL" || got.Side != "buy" ||
		got.Qty != 100 || got.Price != 150.15 || got.Status != "filled" {
		t.Errorf("record = %+v", got)
	}
}

func TestTradesNewestFirstWithLimit(t *testing.T) {
	j := openTemp(t)

	for i, id := range []string{"o-1", "o-2", "o-3"} {
		ev := trader.TradeEvent{
			OrderID:   id,
			Symbol:    "AAPL",
			Side:      model.SideBuy,
			Quantity:  int64(i + 1),
			Status:    model.StatusFilled,
			Timestamp: time.Now(),
		}
		if err := j.RecordTrade(ev); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	trades, err := j.Trades(2)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 2 || trades[0].OrderID != "o-3" || trades[1].OrderID != "o-2" {
		t.Errorf("trades = %+v, want o-3 then o-2", trades)
	}
}

func TestRecordsRejections(t *testing.T) {
	j := openTemp(t)

	ev := trader.TradeEvent{
		OrderID:   "o-1",
		Symbol:    "AAPL",
		Side:      model.SideSell,
		Quantity:  10,
		Status:    model.StatusRejected,
		Reason:    "insufficient position: selling 10, holding 0",
		Timestamp: time.Now(),
	}
	if err := j.RecordTrade(ev); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	trades, _ := j.Trades(1)
	if len(trades) != 1 || trades[0].Status != "rejected" || trades[0].Reason == "" {
		t.Errorf("trades = %+v, want a reasoned rejection", trades)
	}
}
