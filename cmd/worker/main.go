package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/config"
	"churchops/internal/notify"
	"churchops/internal/queue"
	"churchops/internal/storage"
	"churchops/internal/worker"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open storage")
	}

	manager, err := queue.NewManager(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create RabbitMQ manager")
	}
	defer manager.Close()

	clk := clock.Real()
	mailer := notify.NewSMTPMailer(cfg.SMTP)
	email := notify.NewEmailChannel(mailer, cfg.BaseURL)
	sms := notify.NewSMSChannel(notify.NewLogSMSSender(log))
	dispatcher := notify.NewDispatcher(store, email, sms, clk, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := worker.NewSweeper(store, manager, clk, log)
	if err := sweeper.Start(cfg.SweepCron); err != nil {
		log.Fatal().Err(err).Msg("cannot start sweeper")
	}
	defer sweeper.Stop()

	processor := worker.NewProcessor(store, manager, dispatcher, log)
	if err := processor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("cannot start processor")
	}

	log.Info().Msg("worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
}

func openStorage(cfg *config.Config, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Storage {
	case "redis":
		return storage.NewRedisStorage(cfg.RedisAddr, log)
	case "sqlite":
		return storage.OpenSQLite(cfg.SQLitePath)
	default:
		return storage.NewMemoryStorage(), nil
	}
}
