// Package main runs the Discord bot, the ops HTTP server and the snapshot
// worker in one process, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aqzsshi/esser-bot/config"
	"github.com/aqzsshi/esser-bot/internal/bot"
	"github.com/aqzsshi/esser-bot/internal/contracts"
	"github.com/aqzsshi/esser-bot/internal/middleware"
	"github.com/aqzsshi/esser-bot/internal/ops"
	"github.com/aqzsshi/esser-bot/internal/orgs"
	"github.com/aqzsshi/esser-bot/internal/platform/discord"
	"github.com/aqzsshi/esser-bot/internal/scheduler"
	"github.com/aqzsshi/esser-bot/internal/store"
	"github.com/aqzsshi/esser-bot/internal/worker"
	"github.com/aqzsshi/esser-bot/pkg/database"
	"github.com/aqzsshi/esser-bot/pkg/redis"
	"github.com/aqzsshi/esser-bot/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// The cache is an optimization; the bot runs fine on PostgreSQL alone.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, guild cache disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			SnapshotBucket:  cfg.AWS.SnapshotBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	cache := store.NewCache(rdb, time.Duration(cfg.Redis.CacheTTL)*time.Second, logger)
	st := store.New(pool, cache, logger)
	sched := scheduler.New(logger)

	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		logger.Fatal("discord session", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	adapter := discord.NewClient(session, logger)
	engine := contracts.NewEngine(st, sched, adapter, adapter, cfg.Bot.Location(), logger)
	sched.SetFinisher(engine.AutoFinish)
	registry := orgs.NewRegistry(st, adapter, adapter, sched, logger)

	botHandler := bot.New(engine, registry, st, logger)
	botHandler.Register(session)

	if err := session.Open(); err != nil {
		logger.Fatal("discord connect", zap.Error(err))
	}
	defer session.Close()

	// Re-arm auto-finish timers lost on the previous shutdown.
	if err := sched.Rehydrate(ctx, st); err != nil {
		logger.Error("rehydrate timers", zap.Error(err))
	}
	logger.Info("timers rehydrated", zap.Int("pending", sched.Pending()))

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if s3Client != nil {
		snap := worker.NewSnapshotter(st, s3Client, time.Duration(cfg.AWS.SnapshotIntervalMinutes)*time.Minute, logger)
		go snap.Run(workerCtx)
	}

	srv := newOpsServer(cfg, pool, rdb, st, sched, s3Client, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server", zap.Error(err))
		}
	}()
	logger.Info("started", zap.String("ops_port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancelWorkers()
	sched.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newOpsServer(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, st *store.Store, sched *scheduler.Scheduler, s3Client *storage.S3, logger *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	opsHandler := ops.NewHandler(pool, rdb, st, sched, s3Client, logger)
	router.GET("/health", opsHandler.Health)

	api := router.Group("/api", middleware.StaticToken(cfg.Server.OpsToken))
	opsHandler.RegisterRoutes(api)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
