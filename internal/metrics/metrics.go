// Package metrics exposes Prometheus metrics for the trading core.
// All record helpers are nil-receiver safe so components can run without
// a metrics sink wired in (tests, embedded use).
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	reg *prometheus.Registry

	OrdersTotal  *prometheus.CounterVec // labels: status
	TradesTotal  *prometheus.CounterVec // labels: side
	AlertsTotal  *prometheus.CounterVec // labels: kind, type
	RiskDenials  *prometheus.CounterVec // labels: reason
	TaskRuns     *prometheus.CounterVec // labels: task
	FeedPolls    prometheus.Counter
	FeedErrors   prometheus.Counter
	LoopFailures prometheus.Counter

	AccountValue  prometheus.Gauge
	OpenPositions prometheus.Gauge
	MarketOpen    prometheus.Gauge // 0=closed, 1=open
}

// New registers and returns all trader metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders placed, by terminal status",
		}, []string{"status"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Filled trades, by side",
		}, []string{"side"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_alerts_total",
			Help: "Alerts emitted, by kind and type",
		}, []string{"kind", "type"}),
		RiskDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_risk_denials_total",
			Help: "Signals denied by the risk engine, by reason",
		}, []string{"reason"}),
		TaskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_task_runs_total",
			Help: "Scheduled task executions, by task",
		}, []string{"task"}),
		FeedPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_feed_polls_total",
			Help: "Completed market feed poll cycles",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_feed_errors_total",
			Help: "Failed external quote fetches",
		}),
		LoopFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_loop_failures_total",
			Help: "Recovered errors inside the decision loop",
		}),
		AccountValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_account_value",
			Help: "Latest account total value",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Number of open positions",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_market_open",
			Help: "Whether the trading session is open (0/1)",
		}),
	}

	m.reg.MustRegister(
		m.OrdersTotal, m.TradesTotal, m.AlertsTotal, m.RiskDenials, m.TaskRuns,
		m.FeedPolls, m.FeedErrors, m.LoopFailures,
		m.AccountValue, m.OpenPositions, m.MarketOpen,
	)
	return m
}

// Handler returns the scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[metrics] serving on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[metrics] server error: %v", err)
	}
}

// Nil-safe record helpers.

func (m *Metrics) Order(status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Trade(side string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
}

func (m *Metrics) Alert(kind, alertType string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind, alertType).Inc()
}

func (m *Metrics) RiskDenial(reason string) {
	if m == nil {
		return
	}
	m.RiskDenials.WithLabelValues(reason).Inc()
}

func (m *Metrics) TaskRun(task string) {
	if m == nil {
		return
	}
	m.TaskRuns.WithLabelValues(task).Inc()
}

func (m *Metrics) FeedPoll() {
	if m == nil {
		return
	}
	m.FeedPolls.Inc()
}

func (m *Metrics) FeedError() {
	if m == nil {
		return
	}
	m.FeedErrors.Inc()
}

func (m *Metrics) LoopFailure() {
	if m == nil {
		return
	}
	m.LoopFailures.Inc()
}

func (m *Metrics) SetAccountValue(v float64) {
	if m == nil {
		return
	}
	m.AccountValue.Set(v)
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.MarketOpen.Set(1)
	} else {
		m.MarketOpen.Set(0)
	}
}
