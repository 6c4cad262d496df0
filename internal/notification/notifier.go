// Package notification delivers controller events (trade fills,
// rejections, price anomalies, risk breaches) to external channels:
// log output, webhooks, Telegram, Redis pub/sub.
package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"autotraderv1/internal/model"
	"autotraderv1/internal/trader"
)

// AlertLevel represents the severity of an outbound notification.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is the channel-agnostic notification payload.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Symbol  string     `json:"symbol,omitempty"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FromTrade converts a controller trade event into an alert. Fills are
// informational; rejections are warnings.
func FromTrade(ev trader.TradeEvent) Alert {
	level := AlertInfo
	title := fmt.Sprintf("Order %s", ev.Status)
	msg := fmt.Sprintf("%s %d %s @ %.2f", ev.Side, ev.Quantity, ev.Symbol, ev.Price)
	if ev.Status == model.StatusRejected {
		level = AlertWarning
		msg = fmt.Sprintf("%s %d %s rejected: %s", ev.Side, ev.Quantity, ev.Symbol, ev.Reason)
	}
	return Alert{Level: level, Title: title, Symbol: ev.Symbol, Message: msg}
}

// FromAlert converts a controller alert event. Severity maps onto the
// notification levels: high and critical escalate, everything else is a
// warning.
func FromAlert(ev trader.AlertEvent) Alert {
	level := AlertWarning
	switch strings.ToLower(ev.Severity) {
	case "high", "critical":
		level = AlertCritical
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s alert: %s", ev.Kind, ev.Type),
		Symbol:  ev.Symbol,
		Message: ev.Message,
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Dispatcher fans a single alert out to multiple backends concurrently.
// A failing backend is logged and never blocks the others.
type Dispatcher struct {
	notifiers []Notifier
}

// NewDispatcher creates a dispatcher over the given backends.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

func (d *Dispatcher) Send(ctx context.Context, alert Alert) error {
	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, alert); err != nil {
				log.Printf("[notify] delivery failed: %v", err)
			}
		}(n)
	}
	wg.Wait()
	return nil
}
