package main

import (
	"context"
	"fmt"

	"github.com/fjod/grocery-cart/internal/config"
	"github.com/fjod/grocery-cart/internal/feed"
	"github.com/fjod/grocery-cart/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type closer func(ctx context.Context) error

func newRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// openStorage connects the configured session storage backend.
func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, closer, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryStorage(), noop, nil

	case "sqlite":
		st, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func(context.Context) error { return st.Close() }, nil

	case "postgres":
		st, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func(context.Context) error { return st.Close() }, nil

	case "redis":
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStorage(client, cfg.StorageTTL), func(context.Context) error { return client.Close() }, nil

	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		st := storage.NewMongoStorage(db, cfg.StorageTTL)
		if err := st.CreateIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		return st, func(ctx context.Context) error { return db.Client().Disconnect(ctx) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// openFeed connects the configured change feed and starts its receive loop.
// A nil feed means stores are not bridged.
func openFeed(ctx context.Context, cfg config.Config, log zerolog.Logger) (feed.Feed, closer, error) {
	switch cfg.ChangeFeed {
	case "", "none":
		return nil, func(context.Context) error { return nil }, nil

	case "memory":
		f := feed.NewMemoryFeed()
		return f, func(context.Context) error { return f.Close() }, nil

	case "redis":
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		f, err := feed.NewRedisFeed(ctx, client, cfg.RedisChannel, log)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		go f.Run(ctx)
		return f, func(context.Context) error {
			err := f.Close()
			_ = client.Close()
			return err
		}, nil

	case "kafka":
		f := feed.NewKafkaFeed(cfg.KafkaTopic, log, cfg.KafkaBrokers...)
		go f.Run(ctx)
		return f, func(context.Context) error { return f.Close() }, nil

	case "amqp":
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		f, err := feed.NewAMQPFeed(conn, cfg.AMQPExchange, log)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		go f.Run(ctx)
		return f, func(context.Context) error {
			err := f.Close()
			_ = conn.Close()
			return err
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown change feed %q", cfg.ChangeFeed)
	}
}
