package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/repositories"
	"github.com/enterprise/riskcore/internal/retryqueue"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Server.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.RetryTopic).
		Str("group", cfg.Kafka.ConsumerGroup).
		Msg("starting riskcore retry worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	riskEventRepo := repositories.NewRiskEventRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, stopping retry worker...")
		cancel()
	}()

	if err := retryqueue.Run(ctx, cfg.Kafka, riskEventRepo, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("retry worker exited with error")
	}

	log.Info().Msg("retry worker exited")
}
