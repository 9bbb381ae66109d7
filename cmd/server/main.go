package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/playperu/hiddencatch/internal/config"
	"github.com/playperu/hiddencatch/internal/database"
	"github.com/playperu/hiddencatch/internal/game"
	"github.com/playperu/hiddencatch/internal/handler/health"
	"github.com/playperu/hiddencatch/internal/keylock"
	"github.com/playperu/hiddencatch/internal/migrations"
	"github.com/playperu/hiddencatch/internal/objstore"
	"github.com/playperu/hiddencatch/internal/pipeline"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/server"
	"github.com/playperu/hiddencatch/internal/store"
	"github.com/playperu/hiddencatch/internal/vision"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOut := stdout
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
		defer lj.Close()
		logOut = io.MultiWriter(stdout, lj)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, err := migrations.Version(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "schema_version", version)

	// --- Object storage ---
	blobs, err := objstore.Open(ctx, cfg.StorageURL, cfg.PresignTTL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer blobs.Close()
	logger.Info("opened storage", "url", cfg.StorageURL)

	checks := map[string]health.Checker{
		"sqlite":  dbChecker{db},
		"storage": blobs,
	}

	// --- Job queue ---
	var jobs queue.Queue
	switch cfg.QueueDriver {
	case config.QueueRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis", "stream", cfg.QueueStream, "group", cfg.QueueGroup)
		jobs = queue.NewRedisStream(rdb, cfg.QueueStream, cfg.QueueGroup, logger)
		checks["redis"] = redisChecker{rdb}
	default:
		logger.Warn("using in-memory job queue; pending jobs are lost on restart")
		jobs = queue.NewMemory(256, logger)
	}

	// --- Domain ---
	st := store.New(db)
	broker := server.NewBroker()
	locks := &keylock.Map[int64]{}

	games := game.NewService(st, blobs, jobs, broker, game.Options{
		DefaultSlotCount: cfg.DefaultSlotCount,
		DefaultTimeLimit: cfg.DefaultTimeLimit,
		PresignTTL:       cfg.PresignTTL,
		Locks:            locks,
		Logger:           logger,
	})

	visionClient := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionTimeout, cfg.VisionBoxScale)
	pipe := pipeline.New(st, blobs, visionClient, visionClient, broker, locks, logger)
	worker := pipeline.NewWorker(jobs, pipe, cfg.Workers, workerName(), logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Games:  games,
		Images: blobs,
		Broker: broker,
		Admin: server.AdminCredentials{
			User:         cfg.AdminUser,
			PasswordHash: cfg.AdminPasswordHash,
		},
		SPADir: cfg.SPADir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting analysis workers", "workers", cfg.Workers, "driver", cfg.QueueDriver)
		return worker.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// workerName identifies this process in the consumer group.
func workerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
