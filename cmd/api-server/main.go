package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/cache"
	"github.com/enterprise/riskcore/internal/contextengine"
	"github.com/enterprise/riskcore/internal/decision"
	"github.com/enterprise/riskcore/internal/httpapi"
	"github.com/enterprise/riskcore/internal/ml"
	"github.com/enterprise/riskcore/internal/orchestrator"
	"github.com/enterprise/riskcore/internal/repositories"
	"github.com/enterprise/riskcore/internal/retryqueue"
	"github.com/enterprise/riskcore/internal/rules"
	"github.com/enterprise/riskcore/internal/trust"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("starting riskcore api server")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	cacheClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer cacheClient.Close()

	retryProducer, err := retryqueue.NewProducer(cfg.Kafka, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect retry queue producer")
	}
	defer retryProducer.Close()

	payerRepo := repositories.NewPayerRepository(db)
	txnRepo := repositories.NewTransactionRepository(db)
	riskEventRepo := repositories.NewRiskEventRepository(db)
	reputationRepo := repositories.NewReceiverReputationRepository(db)
	processedOutcomeRepo := repositories.NewProcessedOutcomeRepository(db)

	ctxEngine := contextengine.NewEngine(cacheClient, payerRepo, txnRepo, reputationRepo, cfg.Cache, cfg.Deadline, log.Logger)
	rulesEngine := rules.NewEngine(cfg.Risk)
	decisionEngine := decision.NewEngine(cfg.Risk)
	scorer := ml.NewArtifactScorer(cfg.Risk.ModelPath)

	orch := orchestrator.New(
		ctxEngine,
		rulesEngine,
		scorer,
		decisionEngine,
		payerRepo,
		txnRepo,
		riskEventRepo,
		db,
		retryProducer,
		cfg.Deadline,
		cfg.Risk.KnownDeviceSetMax,
		log.Logger,
	)

	trustUpdater := trust.NewUpdater(cacheClient, payerRepo, reputationRepo, processedOutcomeRepo, db, ctxEngine, log.Logger)

	server := httpapi.NewServer(orch, trustUpdater, txnRepo, log.Logger)
	router := server.Router(cfg.Server.Environment)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
