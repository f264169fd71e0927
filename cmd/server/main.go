// Package main is the entry point for the word-jackpot backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wordpot/internal/config"
	"wordpot/internal/handler"
	"wordpot/internal/pkg/db"
	"wordpot/internal/pkg/lock"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/provider"
	"wordpot/internal/repository"
	"wordpot/internal/ruleset"
	"wordpot/internal/service"
	"wordpot/internal/wordlist"
	"wordpot/internal/worker"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	initialSeed, err := decimal.NewFromString(cfg.Round.InitialSeedEth)
	if err != nil {
		log.Fatal().Err(err).Str("initial_seed_eth", cfg.Round.InitialSeedEth).Msg("Invalid initial seed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	roundRepo := repository.NewRoundRepository(dbPool.Pool)
	guessRepo := repository.NewGuessRepository(dbPool.Pool)
	quotaRepo := repository.NewQuotaRepository(dbPool.Pool)
	payoutRepo := repository.NewPayoutRepository(dbPool.Pool)
	purchaseRepo := repository.NewPurchaseRepository(dbPool.Pool)
	refundRepo := repository.NewRefundRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)
	eventRepo := repository.NewEventRepository(dbPool.Pool)

	// Rulesets are validated at boot; a bad rank table or split never makes
	// it to a live round.
	registry, err := ruleset.NewRegistry(ruleset.Default())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ruleset")
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	userLock := lock.NewUserLock()
	dictionary := wordlist.NewDictionary()
	words := wordlist.NewProvider(time.Now().UnixNano())

	// External collaborators; production swaps these for the real feeds.
	holders := provider.NewStaticHolders()
	trust := &provider.StaticTrust{Score: 1.0}
	sender := &provider.LogSender{}

	// Initialize services
	quotaService := service.NewQuotaService(
		dbPool.Pool, roundRepo, quotaRepo, purchaseRepo, eventRepo,
		holders, trust, registry, cfg.Round.RulesetID, userLock, m,
		cfg.Quota.ShareMinTrust,
	)
	guessService := service.NewGuessService(
		dbPool.Pool, roundRepo, guessRepo, quotaRepo, payoutRepo,
		referralRepo, eventRepo, quotaService, dictionary, userLock, m,
	)
	roundService := service.NewRoundService(
		dbPool.Pool, roundRepo, purchaseRepo, refundRepo, eventRepo,
		registry, words, m, initialSeed, cfg.Round.RulesetID,
	)

	refundWorker := worker.NewRefundWorker(
		refundRepo, sender, m,
		cfg.Refunds.MaxRetries, cfg.Refunds.BaseBackoff, cfg.Refunds.BatchSize,
	)

	// Schedule background jobs
	scheduler := cron.New()
	if cfg.Round.AutoStart {
		if _, err := scheduler.AddFunc(cfg.Round.AutoStartCron, func() {
			if err := roundService.EnsureActive(ctx); err != nil {
				log.Error().Err(err).Msg("Round auto-start failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("Invalid auto-start schedule")
		}
	}
	if _, err := scheduler.AddFunc(cfg.Refunds.Cron, func() {
		refundWorker.Run(ctx)
	}); err != nil {
		log.Fatal().Err(err).Msg("Invalid refund schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	h := handler.New(
		cfg, dbPool.Pool, guessService, roundService, quotaService,
		guessRepo, payoutRepo, refundRepo, eventRepo, referralRepo,
		promRegistry,
	)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
