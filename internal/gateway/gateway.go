// Package gateway exposes the controller over HTTP: a WebSocket event
// stream for alerts and trades, plus REST endpoints for status, account
// and order state.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"autotraderv1/internal/ledger"
	"autotraderv1/internal/model"
	"autotraderv1/internal/trader"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Envelope wraps every message pushed on the WebSocket stream.
type Envelope struct {
	Type string      `json:"type"`
	Seq  int64       `json:"seq"`
	TS   time.Time   `json:"ts"`
	Data interface{} `json:"data"`
}

// Hub fans events out to connected WebSocket clients. Slow clients drop
// messages rather than stall the broadcast path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	seq     int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast wraps payload in an Envelope and pushes it to every client.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	env := Envelope{
		Type: eventType,
		Seq:  atomic.AddInt64(&h.seq, 1),
		TS:   time.Now(),
		Data: payload,
	}
	msg, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] marshal %s event: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop
		}
	}
}

// Server serves the event stream and REST endpoints for one Trader.
type Server struct {
	hub    *Hub
	trader *trader.Trader
	ledger *ledger.Ledger
}

// NewServer creates a gateway server and registers the controller's
// alert and trade callbacks on the hub.
func NewServer(t *trader.Trader, l *ledger.Ledger) *Server {
	s := &Server{hub: NewHub(), trader: t, ledger: l}
	t.OnAlert(func(ev trader.AlertEvent) { s.hub.Broadcast("alert", ev) })
	t.OnTrade(func(ev trader.TradeEvent) { s.hub.Broadcast("trade", ev) })
	return s
}

// Hub returns the underlying hub, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

// Routes registers all endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/account", s.handleAccount)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	s.Routes(mux)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[gateway] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[gateway] serve: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	log.Printf("[gateway] client connected: %s", r.RemoteAddr)

	ch := s.hub.register(conn)
	defer func() {
		s.hub.unregister(conn)
		conn.Close()
		log.Printf("[gateway] client disconnected: %s", r.RemoteAddr)
	}()

	// Drain inbound frames so pings and close handshakes work.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.trader.GetStatus())
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ledger.AccountInfo())
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ledger.Positions())
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	writeJSON(w, s.ledger.Orders(status))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
