package model

// Account is the simulated brokerage account. TotalValue is always
// recomputed from cash plus position market values before it is handed
// out; it is never stored stale.
type Account struct {
	AccountID   string  `json:"account_id"`
	Cash        float64 `json:"cash"`
	TotalValue  float64 `json:"total_value"`
	BuyingPower float64 `json:"buying_power"` // no margin: equal to cash
	Currency    string  `json:"currency"`
}
