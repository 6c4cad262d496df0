package model

import (
	"encoding/json"
	"time"
)

// MarketSnapshot is one sampled data point for a watched symbol. The feed
// keeps a bounded history of these per symbol.
type MarketSnapshot struct {
	Symbol        string    `json:"symbol"`
	TS            time.Time `json:"ts"`
	Price         float64   `json:"price"`
	Volume        int64     `json:"volume"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	ChangePercent float64   `json:"change_percent"` // vs. previous snapshot
	VolumeRatio   float64   `json:"volume_ratio"`   // vs. trailing baseline
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *MarketSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
