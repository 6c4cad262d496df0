package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"autotraderv1/internal/ledger"
	"autotraderv1/internal/markethours"
	"autotraderv1/internal/marketfeed"
	"autotraderv1/internal/model"
	"autotraderv1/internal/risk"
	"autotraderv1/internal/scheduler"
	"autotraderv1/internal/trader"
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(ledger.DefaultConfig())
	r := risk.New(l, risk.DefaultConfig())
	f := marketfeed.New(marketfeed.DefaultConfig([]string{"AAPL"}), marketfeed.NewSimQuoter(1), nil)
	s := scheduler.New(markethours.Default())
	trd := trader.New(trader.DefaultConfig([]string{"AAPL"}), l, r, f, s, nil, nil)
	return NewServer(trd, l), l
}

func TestHubBroadcastAndDrop(t *testing.T) {
	h := NewHub()
	ch := h.register(nil)

	h.Broadcast("alert", map[string]string{"msg": "hi"})
	select {
	case msg := <-ch:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != "alert" || env.Seq != 1 {
			t.Errorf("envelope = %+v", env)
		}
	default:
		t.Fatal("no message delivered")
	}

	// Fill the client buffer; excess broadcasts must drop, not block.
	for i := 0; i < 300; i++ {
		h.Broadcast("trade", i)
	}

	h.unregister(nil)
	if n := h.ClientCount(); n != 0 {
		t.Errorf("clients = %d after unregister, want 0", n)
	}
	h.unregister(nil) // idempotent
}

func TestEnvelopeSeqMonotonic(t *testing.T) {
	h := NewHub()
	ch := h.register(nil)

	h.Broadcast("a", nil)
	h.Broadcast("b", nil)

	var first, second Envelope
	json.Unmarshal(<-ch, &first)
	json.Unmarshal(<-ch, &second)
	if second.Seq != first.Seq+1 {
		t.Errorf("seq %d then %d, want consecutive", first.Seq, second.Seq)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var st trader.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Running {
		t.Error("reported running before Start")
	}
	if st.Account.TotalValue <= 0 {
		t.Error("account missing from status")
	}
}

func TestOrdersEndpointFiltersByStatus(t *testing.T) {
	srv, l := newTestServer(t)
	mux := http.NewServeMux()
	srv.Routes(mux)

	l.UpdatePrice("AAPL", 150.0)
	l.PlaceOrder(ledger.OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderMarket})
	l.PlaceOrder(ledger.OrderRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy, Type: model.OrderLimit, LimitPrice: 100})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/orders?status=pending", nil))

	var orders []model.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != model.StatusPending {
		t.Errorf("orders = %+v, want one pending", orders)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
