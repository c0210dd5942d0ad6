package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"framecast/internal/config"
	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/shutdown"
	"framecast/internal/pkg/util"
	"framecast/internal/render"
	"framecast/internal/repositories"
	"framecast/internal/storage"
	"framecast/internal/surface/rodsurface"
	"framecast/internal/worker"
	"framecast/internal/worker/queue"
)

func main() {
	cfg, err := config.Load(util.Env("CONFIG_PATH", ""))
	if err != nil {
		logger.NewDefault().LogFatal("failed to load config", err)
	}

	lc := cfg.Logger()
	lc.ServiceName = "framecast-worker"
	log := logger.New(lc)
	log.Debug("config loaded", "config", cfg.String())

	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	queueName := util.Env("RENDER_QUEUE_NAME", queue.DefaultName)
	storageCfg := storage.ConfigFromEnv()

	ctx, stop := shutdown.SignalContext(context.Background())
	defer stop()

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterFunc("postgres", pool.Close)
	repo := repositories.NewRenderRepository(pool)
	if err := repo.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(context.Context) error {
		return rdb.Close()
	})
	q := queue.NewRedisQueue(rdb, queueName)
	if err := q.Ping(ctx); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, storageCfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	renderer := render.New(cfg.RenderConfig(), rodsurface.NewLauncher(cfg.BrowserOptions(), log), cfg.FFmpeg(), log)

	log.Info("framecast worker started",
		"queue", queueName,
		"provider", sp.Provider(),
		"encoder", string(cfg.RenderConfig().Encoder),
	)
	err = worker.Run(ctx, worker.Deps{
		Store:        repo,
		Queue:        q,
		Renderer:     renderer,
		SP:           sp,
		StorageRoot:  storageCfg.LocalRoot,
		CleanupLocal: util.BoolEnv("CLEANUP_LOCAL", true),
		PopTimeout:   util.DurationEnv("QUEUE_POP_TIMEOUT", 30*time.Second),
		JobTimeout:   util.DurationEnv("RENDER_JOB_TIMEOUT", 0),
		Log:          log,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", "error", err.Error())
	}

	if err := shutdownMgr.Shutdown(); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}
