// Command trader is the automated trading control core.
//
// Wires the simulated ledger, risk engine, market feed, scheduler and
// controller together, then serves the metrics and gateway endpoints
// until interrupted.
//
// Configuration comes from environment variables (see config.Load); a
// local .env file is loaded when present.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"autotraderv1/config"
	"autotraderv1/internal/gateway"
	"autotraderv1/internal/journal"
	"autotraderv1/internal/ledger"
	"autotraderv1/internal/logger"
	"autotraderv1/internal/markethours"
	"autotraderv1/internal/marketfeed"
	"autotraderv1/internal/metrics"
	"autotraderv1/internal/notification"
	"autotraderv1/internal/risk"
	"autotraderv1/internal/scheduler"
	"autotraderv1/internal/trader"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("[trader] loaded .env")
	}

	cfg := config.Load()
	logger.Init("trader", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", slog.Any("watchlist", cfg.Symbols()))

	met := metrics.New()

	// ---- Ledger ----
	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.InitialCash = cfg.InitialCash
	ledgerCfg.CommissionPerShare = cfg.Commission
	ledgerCfg.MinCommission = cfg.MinCommission
	ledgerCfg.Slippage = cfg.Slippage
	led := ledger.New(ledgerCfg)

	// ---- Risk engine ----
	riskCfg := risk.DefaultConfig()
	riskCfg.MaxPositionPerStock = cfg.MaxPositionSize
	riskCfg.MaxPortfolioRisk = cfg.MaxPortfolioRisk
	riskCfg.StopLossRatio = cfg.StopLossRatio
	riskCfg.TakeProfitRatio = cfg.TakeProfitRatio
	riskCfg.MaxDailyLoss = cfg.MaxDailyLoss
	riskCfg.MaxOrdersPerDay = cfg.MaxDailyOrders
	riskCfg.MinOrderInterval = cfg.MinOrderInterval
	riskEng := risk.New(led, riskCfg)

	// ---- Market feed ----
	symbols := cfg.Symbols()
	feedCfg := marketfeed.DefaultConfig(symbols)
	feedCfg.PollInterval = cfg.PollInterval
	feedCfg.PriceChangeThreshold = cfg.PriceThreshold
	feedCfg.VolumeSpikeThreshold = cfg.VolumeRatioMax
	feedCfg.GapThreshold = cfg.GapThreshold
	feedCfg.HistorySize = cfg.HistorySize

	var quoter marketfeed.Quoter
	switch cfg.QuoteSource {
	case "yahoo":
		quoter = marketfeed.NewYahooQuoter()
	default:
		quoter = marketfeed.NewSimQuoter(time.Now().UnixNano())
	}
	feed := marketfeed.New(feedCfg, quoter, met)

	// ---- Scheduler + controller ----
	sched := scheduler.New(markethours.Default())
	source := trader.NewMomentumSource(feed)

	traderCfg := trader.DefaultConfig(symbols)
	traderCfg.AnalysisInterval = cfg.AnalysisInterval
	traderCfg.RiskCheckInterval = cfg.RiskCheckInterval
	traderCfg.LoopInterval = cfg.LoopInterval
	traderCfg.EnableAutoTrading = cfg.EnableAutoTrading
	traderCfg.EnableRiskManagement = cfg.EnableRiskManagement
	traderCfg.EnableMonitoring = cfg.EnableMonitoring
	trd := trader.New(traderCfg, led, riskEng, feed, sched, source, met)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Notifications ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChat != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChat))
	}
	if cfg.RedisAddr != "" {
		rn, err := notification.NewRedisNotifier(notification.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			slog.Error("redis notifier disabled", slog.Any("err", err))
		} else {
			defer rn.Close()
			notifiers = append(notifiers, rn)
		}
	}
	dispatcher := notification.NewDispatcher(notifiers...)
	trd.OnAlert(func(ev trader.AlertEvent) {
		dispatcher.Send(ctx, notification.FromAlert(ev))
	})
	trd.OnTrade(func(ev trader.TradeEvent) {
		dispatcher.Send(ctx, notification.FromTrade(ev))
	})

	// ---- Trade journal ----
	if cfg.JournalPath != "" {
		jnl, err := journal.Open(cfg.JournalPath)
		if err != nil {
			slog.Error("journal disabled", slog.Any("err", err))
		} else {
			defer jnl.Close()
			trd.OnTrade(func(ev trader.TradeEvent) {
				if err := jnl.RecordTrade(ev); err != nil {
					slog.Error("journal write failed", slog.Any("err", err))
				}
			})
		}
	}

	// ---- HTTP surfaces ----
	go met.Serve(ctx, cfg.MetricsAddr)
	gw := gateway.NewServer(trd, led)
	go gw.Run(ctx, cfg.GatewayAddr)

	trd.Start()

	// ---- Wait for shutdown signal ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("shutting down", slog.String("signal", s.String()))

	trd.Stop()
	cancel()
	slog.Info("bye")
}
