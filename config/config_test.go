package config

import (
	"testing"
	"time"
)

func TestSymbolsParsing(t *testing.T) {
	c := &Config{Watchlist: " 000001, 600519 ,,AAPL "}
	got := c.Symbols()
	want := []string{"000001", "600519", "AAPL"}
	if len(got) != len(want) {
		t.Fatalf("Symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	c := Load()
	if c.InitialCash != 100000 {
		t.Errorf("InitialCash = %v, want 100000", c.InitialCash)
	}
	if c.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", c.PollInterval)
	}
	if c.QuoteSource != "sim" {
		t.Errorf("QuoteSource = %q, want sim", c.QuoteSource)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INITIAL_CASH", "50000")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("ENABLE_AUTO_TRADING", "false")
	t.Setenv("MAX_DAILY_ORDERS", "bogus") // falls back

	c := Load()
	if c.InitialCash != 50000 {
		t.Errorf("InitialCash = %v, want 50000", c.InitialCash)
	}
	if c.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", c.PollInterval)
	}
	if c.EnableAutoTrading {
		t.Error("EnableAutoTrading override ignored")
	}
	if c.MaxDailyOrders != 20 {
		t.Errorf("MaxDailyOrders = %d, want fallback 20", c.MaxDailyOrders)
	}
}
