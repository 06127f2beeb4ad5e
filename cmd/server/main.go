// Package main is the entry point for the ballast rebalancing service. It
// wires the drift, sizing, strategy, validation and execution modules into
// the staged pipeline, exposes it over HTTP and optionally runs it on a
// cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ballast/internal/clients/advisor"
	"ballast/internal/clients/brokerhttp"
	"ballast/internal/clients/fillstream"
	"ballast/internal/config"
	"ballast/internal/database"
	"ballast/internal/domain"
	"ballast/internal/modules/allocation"
	allocationhandlers "ballast/internal/modules/allocation/handlers"
	"ballast/internal/modules/drift"
	"ballast/internal/modules/execution"
	"ballast/internal/modules/journal"
	"ballast/internal/modules/rebalancing"
	rebalancinghandlers "ballast/internal/modules/rebalancing/handlers"
	"ballast/internal/modules/sizing"
	"ballast/internal/modules/strategy"
	"ballast/internal/modules/validation"
	"ballast/internal/quotes"
	"ballast/internal/scheduler"
	"ballast/internal/server"
	"ballast/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting ballast")

	// Databases: allocation targets and the run journal are kept separate
	// so the immutable audit trail can be backed up independently
	allocationDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "allocation.db"),
		Name: "allocation",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open allocation database")
	}
	defer allocationDB.Close()

	journalDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "journal.db"),
		Name: "journal",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open journal database")
	}
	defer journalDB.Close()

	allocationRepo := allocation.NewRepository(allocationDB.Conn(), log)
	if err := allocationRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize allocation schema")
	}

	journalRepo := journal.NewRepository(journalDB.Conn(), log)
	if err := journalRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal schema")
	}

	// External clients
	broker := brokerhttp.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, log)

	var oracle domain.AdvisoryOracle
	if cfg.AdvisorURL != "" {
		oracle = advisor.NewClient(cfg.AdvisorURL, log)
		log.Info().Str("url", cfg.AdvisorURL).Msg("Advisory oracle enabled")
	} else {
		log.Info().Msg("Advisory oracle disabled, planning with fallback only")
	}

	var confirmer domain.FillConfirmer
	if cfg.FillStreamURL != "" {
		confirmer = fillstream.NewConfirmer(cfg.FillStreamURL, cfg.BrokerAPIKey, log)
		log.Info().Str("url", cfg.FillStreamURL).Msg("Fill confirmation via stream")
	} else {
		confirmer = execution.NewPollingConfirmer(broker, cfg.Rebalance.PollInterval, log)
		log.Info().Dur("interval", cfg.Rebalance.PollInterval).Msg("Fill confirmation via polling")
	}

	// Pipeline modules
	quoteService := quotes.NewService(broker, cfg.Rebalance.QuoteRequestDelay, log)
	driftCalc := drift.NewCalculator(log)
	sizer := sizing.NewCalculator(log)
	priceModel := strategy.NewLimitPriceBuilder(cfg.Rebalance.LimitTicks, cfg.Rebalance.TickSize)
	planner := strategy.NewPlanner(oracle, priceModel, log)
	validator := validation.NewValidator(
		cfg.Rebalance.SellHaircut,
		cfg.Rebalance.BuyMarkup,
		cfg.Rebalance.AnomalyMaxEquityFraction,
		log,
	)
	executor := execution.NewExecutor(broker, confirmer, execution.Config{
		FillTimeout:           cfg.Rebalance.FillTimeout,
		BuyOrderDelay:         cfg.Rebalance.BuyOrderDelay,
		HaltBuysOnSellFailure: cfg.Rebalance.HaltBuysOnSellFailure,
	}, log)

	rebalancer := rebalancing.NewService(
		broker,
		allocationRepo,
		quoteService,
		driftCalc,
		sizer,
		planner,
		validator,
		executor,
		journalRepo,
		rebalancing.Config{
			ClassDriftThresholdPct:      cfg.Rebalance.ClassDriftThresholdPct,
			InstrumentDriftThresholdPct: cfg.Rebalance.InstrumentDriftThresholdPct,
			MinTradeAmount:              cfg.Rebalance.MinTradeAmount,
		},
		log,
	)

	// HTTP server
	srv := server.New(server.Config{
		Port:                cfg.Port,
		DevMode:             cfg.DevMode,
		RebalancingHandlers: rebalancinghandlers.NewHandler(rebalancer, journalRepo, cfg.AccountID, log),
		AllocationHandlers:  allocationhandlers.NewHandler(allocationRepo, cfg.AccountID, log),
		Broker:              broker,
		Log:                 log,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Optional unattended schedule
	var sched *scheduler.Scheduler
	if cfg.RebalanceCron != "" && cfg.AccountID != "" {
		sched = scheduler.New(rebalancer, cfg.AccountID, cfg.RebalanceCron, log)
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.RebalanceCron).Msg("Failed to start rebalance schedule")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
