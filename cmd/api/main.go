package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"framecast/internal/httpapi"
	"framecast/internal/httpapi/handlers"
	"framecast/internal/httpkit"
	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/shutdown"
	"framecast/internal/pkg/util"
	"framecast/internal/repositories"
	"framecast/internal/storage"
	"framecast/internal/worker/queue"
)

const version = "0.1.0"

func main() {
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "framecast-api",
		AddSource:   util.BoolEnv("LOG_SOURCE", false),
	})
	log.Info("starting framecast API", "version", version)

	httpPort := util.Env("HTTP_PORT", "8080")
	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	queueName := util.Env("RENDER_QUEUE_NAME", queue.DefaultName)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterFunc("postgres", pool.Close)

	repo := repositories.NewRenderRepository(pool)
	if err := repo.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to apply schema", err)
	}
	log.Info("PostgreSQL connected")

	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(context.Context) error {
		return rdb.Close()
	})
	q := queue.NewRedisQueue(rdb, queueName)
	if err := q.Ping(ctx); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected", "queue", queueName)

	sp, err := storage.NewProvider(ctx, storage.ConfigFromEnv())
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Renders: repo,
			Queue:   q,
			SP:      sp,
			Checks: map[string]handlers.Check{
				"postgres": handlers.PingCheck(repo.Ping),
				"redis":    handlers.PingCheck(q.Ping),
			},
			Version: version,
		},
		AllowedOrigins: httpkit.SplitCSV(util.Env("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		Log:            log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}
