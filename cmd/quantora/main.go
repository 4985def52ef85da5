package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/config"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/engine"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/logging"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/market"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/notifier"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/predictor"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/quota"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/scheduler"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/store"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := logging.New("info", "console")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Quantora AI starting")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}

	// Daily quota counters shared across the pipeline
	counters := quota.New(map[string]int{
		quota.KeyMarket:    cfg.Limits.MarketPerDay,
		quota.KeyInference: cfg.Limits.InferencePerDay,
		quota.KeyEmail:     cfg.Limits.EmailPerDay,
	})

	// Persistence
	db, err := store.Open(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	// Market data: one throttled fetcher per provider, chained in
	// preference order
	fetcherOpts := market.FetcherOptions{
		MinInterval:   cfg.RequestDelay(),
		RetryAttempts: cfg.Markets.RetryAttempts,
		RetryDelay:    cfg.RetryDelay(),
		Timeout:       30 * time.Second,
	}
	chain := market.NewChain([]market.Provider{
		market.NewPaprikaProvider(market.NewFetcher("CoinPaprika", counters, fetcherOpts, log), cfg.Markets.HistoryDays, log),
		market.NewCoinCapProvider(market.NewFetcher("CoinCap", counters, fetcherOpts, log), cfg.Markets.HistoryDays, log),
		market.NewGeckoProvider(market.NewFetcher("CoinGecko", counters, fetcherOpts, log), cfg.Markets.HistoryDays, log),
	}, cfg.Markets.HistoryDays*24, log)
	markets := market.NewService(db, chain, cfg.SnapshotTTL(), log)

	// Inference: optional, the engine falls back to the heuristic without it
	var inference engine.Inference
	if cfg.Gemini.APIKey != "" {
		client, err := predictor.NewClient(cfg.Gemini.Model, cfg.Gemini.APIKey, counters, log)
		if err != nil {
			log.Fatal().Err(err).Msg("init gemini client")
		}
		inference = client
	} else {
		log.Warn().Msg("no Gemini API key configured, every signal will use the heuristic")
	}

	// Alerting: optional, skipped entirely without an SMTP host/user
	var dispatcher engine.Dispatcher
	if cfg.SMTP.Host != "" && cfg.SMTP.User != "" {
		mailer := notifier.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)
		dispatcher = notifier.NewDispatcher(db, mailer, counters, cfg.Assets, cfg.EmailMinGap(), log)
	} else {
		log.Warn().Msg("SMTP not configured, alerts disabled")
	}

	orchestrator := engine.New(markets, inference, db, dispatcher, engine.Options{
		PeriodDays:   float64(cfg.Markets.HistoryDays),
		ReuseWindow:  time.Duration(cfg.Predict.RefreshMin) * time.Minute,
		OnChangeOnly: cfg.Email.OnChangeOnly,
	}, log)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(ctx, orchestrator, markets, db, scheduler.Options{
		Assets:        cfg.Assets,
		MarketEvery:   time.Duration(cfg.Markets.RefreshMin) * time.Minute,
		PredictEvery:  time.Duration(cfg.Predict.RefreshMin) * time.Minute,
		AssetsPerRun:  cfg.Predict.AssetsPerRun,
		AssetDelay:    cfg.RequestDelay(),
		RetentionDays: cfg.Predict.RetentionDays,
		RollupHours:   cfg.Predict.RollupHours,
	}, log)
	if err := sched.RegisterAll(); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	// Prometheus endpoint
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// Optional: run a full cycle immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing prediction cycle now")
		go sched.RunCycleNow()
	}

	log.Info().Strs("assets", cfg.Assets).Msg("Quantora AI is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	cancel()
}
