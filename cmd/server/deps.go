package main

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/transcope/fleet-auth/internal/api/handler"
	"github.com/transcope/fleet-auth/internal/core/ports"
	"github.com/transcope/fleet-auth/internal/infrastructure/config"
	"github.com/transcope/fleet-auth/internal/infrastructure/db/memory"
	mongostore "github.com/transcope/fleet-auth/internal/infrastructure/db/mongo"
	"github.com/transcope/fleet-auth/internal/infrastructure/db/postgres"
	redisstore "github.com/transcope/fleet-auth/internal/infrastructure/db/redis"
	"github.com/transcope/fleet-auth/internal/infrastructure/queue"
)

// dependencies holds the infrastructure selected by configuration.
type dependencies struct {
	users       ports.UserRepository
	revocations ports.RevocationStore
	publisher   ports.EventPublisher
	redis       *goredis.Client
	health      map[string]handler.Checker
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	d := &dependencies{health: make(map[string]handler.Checker)}

	if err := d.openUserStore(ctx, cfg); err != nil {
		d.close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			d.close()
			return nil, err
		}
		d.redis = rdb
		d.revocations = redisstore.NewRevocationStore(rdb)
		d.health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		d.closers = append(d.closers, func() { _ = rdb.Close() })
	} else {
		log.Warn().Msg("REDIS_ADDR not set: using in-process token revocation, rate limiting disabled")
		d.revocations = memory.NewRevocationStore()
	}

	if cfg.AMQP.URL != "" {
		pub, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			d.close()
			return nil, err
		}
		d.publisher = pub
		d.health["rabbitmq"] = pub.Ping
		d.closers = append(d.closers, func() { _ = pub.Close() })
	} else {
		d.publisher = queue.NewLogPublisher(log.With().Str("component", "events").Logger())
	}

	return d, nil
}

func (d *dependencies) openUserStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			AppName:     cfg.Mongo.AppName,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { _ = client.Disconnect(context.Background()) })
		repo := mongostore.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		d.users = repo
		d.health["mongodb"] = mongoCheck(db)

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { _ = db.Close() })
		repo, err := postgres.NewUserRepository(ctx, db)
		if err != nil {
			return err
		}
		d.users = repo
		d.health["postgres"] = postgresCheck(db)

	default:
		d.users = memory.NewUserRepository()
	}
	return nil
}

func mongoCheck(db *mongo.Database) handler.Checker {
	return func(ctx context.Context) error {
		return db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
	}
}

func postgresCheck(db *sql.DB) handler.Checker {
	return db.PingContext
}
