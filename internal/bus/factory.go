package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/config"
)

// Module is the fx module for the event bus.
var Module = fx.Module("bus",
	fx.Provide(NewBusFx),
)

// NewBusFx creates the Bus for the configured backend and ties its lifetime
// to the fx lifecycle.
func NewBusFx(lc fx.Lifecycle, cfg *config.Config, pool *pgxpool.Pool) (Bus, error) {
	logger := watermill.NewSlogLogger(slog.Default())

	var b *WatermillBus
	var err error
	switch cfg.BusType {
	case "nats":
		b, err = newNATSBus(cfg, logger)
	case "sql":
		b, err = newSQLBus(pool, logger)
	case "gochannel", "":
		b = newGoChannelBus(logger)
	default:
		return nil, fmt.Errorf("bus: unknown BusType %q (valid: gochannel, nats, sql)", cfg.BusType)
	}
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return b.Close()
		},
	})

	slog.Info("bus: created", "type", cfg.BusType)
	return b, nil
}

// newGoChannelBus is the in-process backend for development and tests. The
// job stream is not durable here; acceptable for single-process runs.
func newGoChannelBus(logger watermill.LoggerAdapter) *WatermillBus {
	ch := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		logger,
	)
	return NewWatermillBus(ch, ch, ch, ch)
}

// newNATSBus uses core NATS for room fan-out (no replay, every pod receives
// every message) and JetStream with a durable queue-group consumer for the
// job stream (exactly one worker per delivery, redelivery on missed ack).
func newNATSBus(cfg *config.Config, logger watermill.LoggerAdapter) (*WatermillBus, error) {
	if cfg.NatsURL == "" {
		return nil, fmt.Errorf("bus: BusType is \"nats\" but NatsURL is empty")
	}

	var natsOpts []nats.Option
	if cfg.NatsCredentials != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(cfg.NatsCredentials))
	}

	marshaler := &wmnats.GobMarshaler{}

	roomPub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.NatsURL,
		NatsOptions: natsOpts,
		Marshaler:   marshaler,
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bus: create nats room publisher: %w", err)
	}

	roomSub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:         cfg.NatsURL,
		NatsOptions: natsOpts,
		Unmarshaler: marshaler,
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = roomPub.Close()
		return nil, fmt.Errorf("bus: create nats room subscriber: %w", err)
	}

	jobPub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.NatsURL,
		NatsOptions: natsOpts,
		Marshaler:   marshaler,
		JetStream:   wmnats.JetStreamConfig{AutoProvision: true},
	}, logger)
	if err != nil {
		_ = roomPub.Close()
		_ = roomSub.Close()
		return nil, fmt.Errorf("bus: create jetstream job publisher: %w", err)
	}

	jobSub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:              cfg.NatsURL,
		NatsOptions:      natsOpts,
		Unmarshaler:      marshaler,
		QueueGroupPrefix: jobsConsumerGroup,
		AckWaitTimeout:   30 * time.Second,
		JetStream: wmnats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: jobsConsumerGroup,
		},
	}, logger)
	if err != nil {
		_ = roomPub.Close()
		_ = roomSub.Close()
		_ = jobPub.Close()
		return nil, fmt.Errorf("bus: create jetstream job subscriber: %w", err)
	}

	return NewWatermillBus(roomPub, roomSub, jobPub, jobSub), nil
}

// newSQLBus runs both families over postgres tables; room topics get a
// per-pod consumer group so every pod observes every message, the job topic
// shares one group across the fleet.
func newSQLBus(pool *pgxpool.Pool, logger watermill.LoggerAdapter) (*WatermillBus, error) {
	if pool == nil {
		return nil, fmt.Errorf("bus: BusType is \"sql\" but pgxpool is nil")
	}

	db := stdlib.OpenDBFromPool(pool)

	schemaAdapter := watermillsql.DefaultPostgreSQLSchema{}
	offsetsAdapter := watermillsql.DefaultPostgreSQLOffsetsAdapter{}

	pub, err := watermillsql.NewPublisher(
		db,
		watermillsql.PublisherConfig{
			SchemaAdapter:        schemaAdapter,
			AutoInitializeSchema: true,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("bus: create sql publisher: %w", err)
	}

	roomSub, err := newSQLSubscriber(db, "pod_"+watermill.NewShortUUID(), schemaAdapter, offsetsAdapter, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("bus: create sql room subscriber: %w", err)
	}

	jobSub, err := newSQLSubscriber(db, jobsConsumerGroup, schemaAdapter, offsetsAdapter, logger)
	if err != nil {
		_ = pub.Close()
		_ = roomSub.Close()
		return nil, fmt.Errorf("bus: create sql job subscriber: %w", err)
	}

	return NewWatermillBus(pub, roomSub, pub, jobSub), nil
}

func newSQLSubscriber(db watermillsql.Beginner, group string, schema watermillsql.SchemaAdapter, offsets watermillsql.OffsetsAdapter, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return watermillsql.NewSubscriber(
		db,
		watermillsql.SubscriberConfig{
			ConsumerGroup:    group,
			SchemaAdapter:    schema,
			OffsetsAdapter:   offsets,
			InitializeSchema: true,
		},
		logger,
	)
}
