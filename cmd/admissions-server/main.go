// cmd/admissions-server/main.go
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"admitbridge/internal/api"
	"admitbridge/internal/common/auth"
	"admitbridge/internal/common/config"
	"admitbridge/internal/common/database"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/observability"
	"admitbridge/internal/common/storage"
	"admitbridge/internal/workflow/autosave"
	"admitbridge/internal/workflow/docreuse"
	"admitbridge/internal/workflow/draftstore"
	"admitbridge/internal/workflow/notify"
	"admitbridge/internal/workflow/submit"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	var zapLog *zap.Logger

	cfg, err := config.Load()
	if err != nil {
		zapLog = logger.New("info", "console")
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting admissions server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rd *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rd, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rd.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rd.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Object Storage ---
	var objects *storage.S3Store
	err = retryWithBackoff(func() error {
		var err error
		objects, err = storage.NewS3Store(ctx, cfg.Storage)
		return err
	}, 5, 2*time.Second, zapLog, "object storage initialization")
	if err != nil {
		zapLog.Fatal("object storage failed after retries", zap.Error(err))
	}
	zapLog.Info("Object storage initialized")

	// --- Init Notifier ---
	notifier, err := notify.NewNotifier(ctx, cfg.Notifications, pg.GetDB(), log)
	if err != nil {
		zapLog.Fatal("notifier initialization failed", zap.Error(err))
	}

	// --- Wire workflow components ---
	snapshotTTL := time.Duration(cfg.Storage.SnapshotTTLDays) * 24 * time.Hour

	drafts := draftstore.NewStore(pg.GetDB(), log)
	snapshots := draftstore.NewSnapshotStore(rd.GetClient(), snapshotTTL, log)
	saver := autosave.NewController(drafts, snapshots, obs, log)
	resolver := docreuse.NewResolver(pg.GetDB(), objects, cfg.Storage, log)
	orchestrator := submit.NewOrchestrator(
		pg.GetDB(), drafts, snapshots, objects, resolver, notifier, cfg.Storage, log, obs,
	)

	handler := api.NewHandler(
		pg.GetDB(), rd.GetClient(), drafts, snapshots, saver, orchestrator,
		log, int64(cfg.Server.MaxUploadBytes),
	)

	identityResolver := auth.NewKeycloakResolver(cfg.Auth)

	server := api.NewServer(cfg.Server, handler, identityResolver, log)
	if err := server.Run(); err != nil {
		zapLog.Fatal("server exited with error", zap.Error(err))
	}
}
