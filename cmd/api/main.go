package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"churchops/internal/calendar"
	"churchops/internal/clock"
	"churchops/internal/config"
	"churchops/internal/handlers"
	"churchops/internal/notify"
	"churchops/internal/queue"
	"churchops/internal/recurrence"
	"churchops/internal/storage"
	"churchops/internal/token"
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
	var q handlers.Enqueuer = manager

	clk := clock.Real()
	mailer := notify.NewSMTPMailer(cfg.SMTP)
	email := notify.NewEmailChannel(mailer, cfg.BaseURL)
	sms := notify.NewSMSChannel(notify.NewLogSMSSender(log))

	dispatcher := notify.NewDispatcher(store, email, sms, clk, log)
	svc := notify.NewService(store, dispatcher, mailer, clk, cfg.AdminEmails, log)
	registry := token.NewRegistry(store)
	expander := recurrence.NewExpander(clk, log)
	exporter := calendar.NewExporter(store, clk)

	admin := handlers.NewAdminHandler(store, expander, svc, registry, q, clk, log)
	tokens := handlers.NewTokenHandler(registry, svc, exporter, log)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: handlers.NewRouter(admin, tokens),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
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
