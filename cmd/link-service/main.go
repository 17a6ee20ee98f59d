package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/MagnunAVF/mail-deeplink/internal"
	"github.com/MagnunAVF/mail-deeplink/internal/accounts"
	"github.com/MagnunAVF/mail-deeplink/internal/api"
	"github.com/MagnunAVF/mail-deeplink/internal/config"
	"github.com/MagnunAVF/mail-deeplink/internal/events"
	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
	"github.com/MagnunAVF/mail-deeplink/internal/store"
)

func main() {
	config.LoadDotEnv()
	applog.InitFromEnv()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(cfg.DatabaseURL, cfg.GormLogLevel)
	if err != nil {
		slog.Error("Unable to connect to database", "err", err)
		os.Exit(1)
	}
	if err := store.Migrate(db); err != nil {
		slog.Error("Failed to migrate database", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	accountStore := accounts.NewStore(rdb)
	defer accountStore.Close()
	if err := accountStore.Ping(ctx); err != nil {
		slog.Error("Unable to connect to Redis", "err", err)
		os.Exit(1)
	}

	rabbitConn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()
	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	defer rabbitCH.Close()
	if _, err := events.DeclareQueue(rabbitCH, cfg.LinkEventQueue); err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	server := &api.Server{
		Resolver:       internal.NewResolver(internal.LinkBuilder{Host: cfg.WebmailHost}, nil),
		Records:        store.NewRecordStore(db),
		Accounts:       accountStore,
		Events:         events.NewPublisher(rabbitCH, cfg.LinkEventQueue),
		PublishTimeout: cfg.PublishTimeout,
	}
	app := server.App()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down link service")
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			slog.Error("Shutdown failed", "err", err)
		}
	}()

	slog.Info("Starting link service", "addr", cfg.Addr, "webmail_host", cfg.WebmailHost)
	if err := app.Listen(cfg.Addr); err != nil {
		slog.Error("Link service failed", "err", err)
		os.Exit(1)
	}
}
