package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/mail-deeplink/internal"
	"github.com/MagnunAVF/mail-deeplink/internal/config"
	"github.com/MagnunAVF/mail-deeplink/internal/events"
	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
	"github.com/MagnunAVF/mail-deeplink/internal/store"
)

func main() {
	config.LoadDotEnv()
	applog.InitFromEnv()
	cfg := config.Load()

	db, err := store.Open(cfg.DatabaseURL, cfg.GormLogLevel)
	if err != nil {
		slog.Error("Unable to connect to database", "err", err)
		os.Exit(1)
	}
	if err := store.Migrate(db); err != nil {
		slog.Error("Failed to migrate database", "err", err)
		os.Exit(1)
	}
	stats := store.NewStatsStore(db)

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

	q, err := events.DeclareQueue(rabbitCH, cfg.LinkEventQueue)
	if err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	// Prefetch one batch worth of messages.
	if err := rabbitCH.Qos(cfg.BatchSize, 0, false); err != nil {
		slog.Error("Failed to set QoS", "err", err)
		os.Exit(1)
	}

	msgs, err := rabbitCH.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		slog.Error("Failed to register consumer", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Link stats worker started", "queue", q.Name, "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval.String())

	b := &batcher{stats: stats}
	ticker := time.NewTicker(cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flush(context.Background())
			slog.Info("Link stats worker stopped")
			return

		case d, ok := <-msgs:
			if !ok {
				slog.Warn("RabbitMQ channel closed")
				b.flush(context.Background())
				return
			}
			event, err := events.Decode(d.Body)
			if err != nil {
				slog.Error("Error decoding message. Rejecting.", "err", err)
				_ = d.Reject(false)
				continue
			}
			b.add(event, d)
			if len(b.events) >= cfg.BatchSize {
				b.flush(ctx)
				ticker.Reset(cfg.FlushInterval)
			}

		case <-ticker.C:
			if len(b.events) > 0 {
				slog.Info("Timer flush: processing queued events", "count", len(b.events))
				b.flush(ctx)
			}
		}
	}
}

type batcher struct {
	stats      *store.StatsStore
	events     []internal.LinkOpenEvent
	deliveries []amqp091.Delivery
}

func (b *batcher) add(event internal.LinkOpenEvent, d amqp091.Delivery) {
	b.events = append(b.events, event)
	b.deliveries = append(b.deliveries, d)
}

// flush writes the aggregated counts and acks the batch, or requeues it when
// the transaction fails.
func (b *batcher) flush(ctx context.Context) {
	if len(b.events) == 0 {
		return
	}
	defer func() { b.events, b.deliveries = nil, nil }()

	counts := internal.CountByTier(b.events)
	if err := b.stats.AddTierCounts(ctx, counts); err != nil {
		slog.Error("Failed to store tier counts. Nacking messages.", "count", len(b.deliveries), "err", err)
		for _, d := range b.deliveries {
			_ = d.Nack(false, true)
		}
		return
	}
	for _, d := range b.deliveries {
		_ = d.Ack(false)
	}
	slog.Info("Processed link events", "count", len(b.events), "tiers", len(counts))
}
