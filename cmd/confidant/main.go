package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/confidant-bot/confidant/internal/handler"
	"github.com/confidant-bot/confidant/internal/middleware"
	"github.com/confidant-bot/confidant/internal/platform"
	"github.com/confidant-bot/confidant/internal/platform/discord"
	"github.com/confidant-bot/confidant/internal/repository"
	"github.com/confidant-bot/confidant/internal/service"
	"github.com/confidant-bot/confidant/pkg/cache"
	"github.com/confidant-bot/confidant/pkg/config"
	"github.com/confidant-bot/confidant/pkg/database"
	"github.com/confidant-bot/confidant/pkg/logger"
	corsmiddleware "github.com/confidant-bot/confidant/pkg/middleware/cors"
	reqidmiddleware "github.com/confidant-bot/confidant/pkg/middleware/requestid"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	loc, err := time.LoadLocation(cfg.Confession.TimeZone)
	if err != nil {
		logr.Sugar().Fatalw("invalid time zone", "tz", cfg.Confession.TimeZone, "error", err)
	}

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close() //nolint:errcheck

	games := repository.NewGameRepository(rdb, logr)
	sequence := repository.NewSequenceRepository(rdb, loc, logr)
	submissions := repository.NewSubmissionRepository(rdb, cfg.Confession.StatusTTL)

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelBootstrap()
	if err := sequence.Bootstrap(bootstrapCtx); err != nil {
		logr.Sugar().Fatalw("failed to bootstrap confession sequence", "error", err)
	}
	if err := games.Bootstrap(bootstrapCtx, cfg.Game.InitialGoal, cfg.Game.InitialFactor); err != nil {
		logr.Sugar().Fatalw("failed to bootstrap game state", "error", err)
	}

	var archive service.ModerationArchive
	var audit *repository.AuditRepository
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		audit = repository.NewAuditRepository(db)
		archive = audit
	}

	metrics := service.NewMetricsService()
	dispatcher := platform.NewDispatcher(logr, metrics)

	gateway, err := discord.New(cfg.Bot.Token, dispatcher, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to create gateway", "error", err)
	}

	confessions := service.NewConfessionService(gateway, submissions, sequence, archive, cfg.Confession, logr, metrics)
	counting := service.NewCountingService(gateway, games, cfg.Game, logr, metrics)

	dispatcher.Handle(platform.RouteDirect, platform.EventMessage, confessions.Intake)
	dispatcher.Handle(cfg.Confession.ModerationChannelID, platform.EventReactionAdd, confessions.OnModerationReaction)
	dispatcher.Handle(cfg.Game.ChannelID, platform.EventMessage, counting.OnChannelMessage)

	if err := gateway.Open(); err != nil {
		logr.Sugar().Fatalw("failed to open gateway", "error", err)
	}

	// Unresolvable channels are configuration errors and abort startup.
	for _, id := range []string{cfg.Confession.ModerationChannelID, cfg.Confession.OutputChannelID, cfg.Game.ChannelID} {
		if err := gateway.ResolveChannel(id); err != nil {
			logr.Sugar().Fatalw("failed to resolve channel", "channel_id", id, "error", err)
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	newStatusHandler(games, audit, logr).Register(r)

	addr := fmt.Sprintf(":%d", cfg.Admin.Port)
	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		logr.Sugar().Infow("admin server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("admin server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("admin server shutdown", "error", err)
	}
	// The gateway stops feeding events before the dispatcher drains.
	if err := gateway.Close(); err != nil {
		logr.Sugar().Warnw("gateway close", "error", err)
	}
	dispatcher.Close()
}

func newStatusHandler(games *repository.GameRepository, audit *repository.AuditRepository, logr *zap.Logger) *handler.StatusHandler {
	if audit == nil {
		return handler.NewStatusHandler(games, nil, logr)
	}
	return handler.NewStatusHandler(games, audit, logr)
}
