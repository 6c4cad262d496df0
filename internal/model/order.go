// Package model defines the shared domain types for the trading core:
// orders, positions, the simulated account, and market snapshots.
package model

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a recognised side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// Valid reports whether t is a recognised order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderMarket, OrderLimit, OrderStop, OrderStopLimit:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order.
//
// pending is the only non-terminal state. Market orders fill or reject
// atomically, so there is no partial-fill state.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a single order record. Orders are created by the ledger and
// mutated only by the ledger during matching or cancellation. They are
// never deleted: terminal orders stay in the order history for audit.
type Order struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     int64       `json:"quantity"`
	LimitPrice   float64     `json:"limit_price,omitempty"` // limit / stop_limit orders
	StopPrice    float64     `json:"stop_price,omitempty"`  // stop / stop_limit orders
	Status       OrderStatus `json:"status"`
	FilledQty    int64       `json:"filled_qty"`
	FilledPrice  float64     `json:"filled_price,omitempty"`
	Commission   float64     `json:"commission,omitempty"`
	RejectReason string      `json:"reject_reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
