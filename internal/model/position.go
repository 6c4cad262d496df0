package model

import "time"

// Position represents a long holding in a single symbol. The simulation
// only supports long positions, so Quantity >= 0 always holds; a position
// whose quantity reaches zero is removed from the ledger.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`      // quantity-weighted cost basis
	CurrentPrice  float64   `json:"current_price"`  // latest mark price
	MarketValue   float64   `json:"market_value"`   // Quantity * CurrentPrice
	UnrealizedPnL float64   `json:"unrealized_pnl"` // (CurrentPrice - AvgPrice) * Quantity
	RealizedPnL   float64   `json:"realized_pnl"`   // accumulated across closes
	UpdatedAt     time.Time `json:"updated_at"`
}

// MarkToMarket refreshes the derived fields from the given price.
func (p *Position) MarkToMarket(price float64, now time.Time) {
	p.CurrentPrice = price
	p.MarketValue = float64(p.Quantity) * price
	p.UnrealizedPnL = (price - p.AvgPrice) * float64(p.Quantity)
	p.UpdatedAt = now
}
