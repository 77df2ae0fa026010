// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dalemusser/eldercircle/internal/app/system/indexes"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"github.com/dalemusser/eldercircle/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// connectRetryDelay is the base delay between startup ping attempts.
var connectRetryDelay = time.Second

// ConnectDB opens the MongoDB client and waits until the server answers a
// ping, retrying with backoff so the app can start alongside its database.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize).
		SetAppName("eldercircle")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	if err := pingWithRetry(ctx, client, appCfg.MongoConnectAttempts, logger); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, err
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool", appCfg.MongoMaxPoolSize),
		zap.Uint64("min_pool", appCfg.MongoMinPoolSize))

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// pinger is satisfied by *mongo.Client.
type pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

func pingWithRetry(ctx context.Context, client pinger, attempts uint, logger *zap.Logger) error {
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
			defer cancel()
			return client.Ping(pctx, readpref.Primary())
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(connectRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("mongo ping failed, retrying",
				zap.Uint("attempt", n+1),
				zap.Uint("of", attempts),
				zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("mongo ping after %d attempts: %w", attempts, err)
	}
	return nil
}

// EnsureSchema creates the collections with their JSON-Schema validators,
// then reconciles the indexes every store depends on, including the unique
// elder code and the one-request-per-pair pending index.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
