package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"
	"time"

	"tradePilot/config"
	"tradePilot/internal/adapters/binanceclient"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/adapters/paper"
	"tradePilot/internal/adapters/reviewer"
	"tradePilot/internal/adapters/sqlite"
	"tradePilot/internal/app"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/position"
	"tradePilot/internal/risk"
	"tradePilot/internal/strategy"
	"tradePilot/internal/telemetry"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize zap logger: %v", err)
		}
		defer func() { _ = zl.Sync() }()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// Shut down cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Adapters. Market data always comes from Binance;
	// order execution is simulated in paper mode.
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	var executor ports.OrderExecutor = binanceClient
	if cfg.Mode == domain.ModePaper {
		executor, err = paper.New(paper.Config{
			QuoteAsset: cfg.QuoteAsset,
			Market:     binanceClient,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper executor")
			log.Fatalf("FATAL: Failed to initialize paper executor: %v", err)
		}
	}
	appLogger.Info(ctx, "Exchange adapters initialized", map[string]interface{}{"mode": cfg.Mode})

	// 5. Load Risk Policy
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load risk policy")
		log.Fatalf("FATAL: Failed to load risk policy: %v", err)
	}
	horizonTable, err := policy.HorizonTable()
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid horizon table in risk policy")
		log.Fatalf("FATAL: Invalid horizon table in risk policy: %v", err)
	}

	// 6. Initialize Ledger and restore open positions
	ledger, err := position.NewLedger(repo, repo, appLogger, position.FallbackPolicy{
		Horizon:       policy.FallbackHorizon(),
		Table:         horizonTable,
		AdaptiveStops: policy.AdaptiveStops,
		RequireLevels: policy.Restore.RequireLevels,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position ledger")
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}
	restored, err := ledger.Restore(ctx, cfg.Mode)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to restore open positions")
		log.Fatalf("FATAL: Failed to restore open positions: %v", err)
	}
	appLogger.Info(ctx, "Position ledger restored", map[string]interface{}{"openPositions": restored})

	// 7. Seed the daily loss tracker with P&L already realized today
	seed, err := repo.RealizedPNLToday(ctx, cfg.Mode)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load today's realized P&L")
		log.Fatalf("FATAL: Failed to load today's realized P&L: %v", err)
	}
	daily := risk.NewDailyTracker(time.Now(), seed)

	// 8. Initialize Evaluator, Metrics Builder and Strategies
	evaluator, err := risk.NewEvaluator(policy.EvaluatorConfig(), horizonTable, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk evaluator")
		log.Fatalf("FATAL: Failed to initialize risk evaluator: %v", err)
	}
	metricsBuilder, err := strategy.NewMetricsBuilder(strategy.MetricsConfig{
		ATRPeriod:       policy.ATRPeriod,
		BBPeriod:        cfg.StrategyBBPeriod,
		BBStdDev:        cfg.StrategyBBStdDev,
		SupportLookback: cfg.SupportLookback,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize metrics builder")
		log.Fatalf("FATAL: Failed to initialize metrics builder: %v", err)
	}
	trend, err := strategy.NewTrendFollow(strategy.TrendFollowConfig{
		ShortMAPeriod: cfg.StrategyShortMAPeriod,
		LongMAPeriod:  cfg.StrategyLongMAPeriod,
		EMAPeriod:     cfg.StrategyEMAPeriod,
		RSIPeriod:     cfg.StrategyRSIPeriod,
		RSIOverbought: cfg.StrategyRSIOverbought,
		RSIOversold:   cfg.StrategyRSIOversold,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trend strategy")
		log.Fatalf("FATAL: Failed to initialize trend strategy: %v", err)
	}
	reversion, err := strategy.NewMeanReversion(strategy.MeanReversionConfig{
		RSIPeriod:     cfg.StrategyRSIPeriod,
		RSIOverbought: cfg.StrategyRSIOverbought,
		RSIOversold:   cfg.StrategyRSIOversold,
		BBPeriod:      cfg.StrategyBBPeriod,
		BBStdDev:      cfg.StrategyBBStdDev,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize mean-reversion strategy")
		log.Fatalf("FATAL: Failed to initialize mean-reversion strategy: %v", err)
	}

	// 9. Initialize Policy Reviewer
	reviewClient, err := reviewer.New(reviewer.Config{
		URL:     cfg.ReviewerURL,
		Timeout: cfg.ReviewerTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize policy reviewer")
		log.Fatalf("FATAL: Failed to initialize policy reviewer: %v", err)
	}

	// 10. Telemetry (optional)
	var engineMetrics *telemetry.Metrics
	if cfg.MetricsAddr != "" {
		m, registry := telemetry.New()
		engineMetrics = m
		srv := telemetry.NewServer(cfg.MetricsAddr, registry, appLogger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				appLogger.Error(context.Background(), err, "Error stopping metrics server")
			}
		}()
	}

	// 11. Initialize and start the Cycle Engine
	service, err := app.NewService(app.Deps{
		Config:     cfg,
		Policy:     policy,
		Ledger:     ledger,
		Evaluator:  evaluator,
		Daily:      daily,
		Strategies: []ports.Strategy{trend, reversion},
		Metrics:    metricsBuilder,
		Market:     binanceClient,
		Executor:   executor,
		Reviewer:   reviewClient,
		Logger:     appLogger,
		Telemetry:  engineMetrics,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize cycle engine")
		log.Fatalf("FATAL: Failed to initialize cycle engine: %v", err)
	}

	if err := service.Start(ctx); err != nil && ctx.Err() == nil {
		appLogger.Error(ctx, err, "Cycle engine exited with error")
		log.Fatalf("FATAL: Cycle engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
