// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	approvalstore "github.com/dalemusser/taskhub/internal/app/store/approvals"
	"github.com/dalemusser/taskhub/internal/app/store/audit"
	membershipstore "github.com/dalemusser/taskhub/internal/app/store/memberships"
	orgunitstore "github.com/dalemusser/taskhub/internal/app/store/orgunits"
	submissionstore "github.com/dalemusser/taskhub/internal/app/store/submissions"
	taskstore "github.com/dalemusser/taskhub/internal/app/store/tasks"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection and verifies it with a
// ping before the rest of startup proceeds.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))

	return DBDeps{
		TaskHubMongoClient:   client,
		TaskHubMongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// EnsureSchema creates the indexes every store depends on. The unique
// indexes double as the concurrency arbiters (submission versions,
// approval chain levels, org unit sibling names), so this must run
// before the handler starts serving.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.TaskHubMongoDatabase

	type indexer interface {
		EnsureIndexes(context.Context) error
	}
	stores := map[string]indexer{
		"org_units":      orgunitstore.New(db),
		"memberships":    membershipstore.New(db),
		"users":          userstore.New(db),
		"tasks":          taskstore.New(db),
		"submissions":    submissionstore.New(db),
		"approval_steps": approvalstore.New(db),
		"audit_events":   audit.New(db),
	}
	for name, s := range stores {
		if err := s.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes for %s: %w", name, err)
		}
	}

	logger.Info("schema ensured", zap.Int("collections", len(stores)))
	return nil
}
