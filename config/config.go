package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Core trading
	Watchlist     string // comma-separated symbols
	InitialCash   float64
	Commission    float64
	MinCommission float64
	Slippage      float64

	// Risk limits
	MaxPositionSize  float64
	MaxPortfolioRisk float64
	StopLossRatio    float64
	TakeProfitRatio  float64
	MaxDailyLoss     float64
	MaxDailyOrders   int
	MinOrderInterval time.Duration

	// Market feed
	QuoteSource    string // "sim" or "yahoo"
	PollInterval   time.Duration
	PriceThreshold float64
	VolumeRatioMax float64
	GapThreshold   float64
	HistorySize    int

	// Controller
	AnalysisInterval     time.Duration
	RiskCheckInterval    time.Duration
	LoopInterval         time.Duration
	EnableAutoTrading    bool
	EnableRiskManagement bool
	EnableMonitoring     bool

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	WebhookURL    string
	TelegramToken string
	TelegramChat  string
	JournalPath   string
	MetricsAddr   string
	GatewayAddr   string
	LogLevel      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Watchlist:     getEnv("WATCHLIST", "000001,600519"),
		InitialCash:   getFloat("INITIAL_CASH", 100000),
		Commission:    getFloat("COMMISSION_RATE", 0.003),
		MinCommission: getFloat("MIN_COMMISSION", 5.0),
		Slippage:      getFloat("SLIPPAGE_RATE", 0.001),

		MaxPositionSize:  getFloat("MAX_POSITION_SIZE", 20000),
		MaxPortfolioRisk: getFloat("MAX_PORTFOLIO_RISK", 0.25),
		StopLossRatio:    getFloat("STOP_LOSS_RATIO", 0.03),
		TakeProfitRatio:  getFloat("TAKE_PROFIT_RATIO", 0.08),
		MaxDailyLoss:     getFloat("MAX_DAILY_LOSS", 0.25),
		MaxDailyOrders:   getInt("MAX_DAILY_ORDERS", 20),
		MinOrderInterval: getDuration("MIN_ORDER_INTERVAL", time.Minute),

		QuoteSource:    getEnv("QUOTE_SOURCE", "sim"),
		PollInterval:   getDuration("POLL_INTERVAL", time.Minute),
		PriceThreshold: getFloat("PRICE_CHANGE_THRESHOLD", 3.0),
		VolumeRatioMax: getFloat("VOLUME_RATIO_THRESHOLD", 2.0),
		GapThreshold:   getFloat("GAP_THRESHOLD", 2.0),
		HistorySize:    getInt("HISTORY_SIZE", 100),

		AnalysisInterval:  getDuration("ANALYSIS_INTERVAL", 30*time.Minute),
		RiskCheckInterval: getDuration("RISK_CHECK_INTERVAL", 5*time.Minute),
		LoopInterval:      getDuration("LOOP_INTERVAL", time.Minute),

		EnableAutoTrading:    getBool("ENABLE_AUTO_TRADING", true),
		EnableRiskManagement: getBool("ENABLE_RISK_MANAGEMENT", true),
		EnableMonitoring:     getBool("ENABLE_MONITORING", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisChannel:  getEnv("REDIS_CHANNEL", "trader:alerts"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChat:  getEnv("TELEGRAM_CHAT_ID", ""),
		JournalPath:   getEnv("JOURNAL_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// Symbols parses the Watchlist string into a cleaned symbol slice.
func (c *Config) Symbols() []string {
	parts := strings.Split(c.Watchlist, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
