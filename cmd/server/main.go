package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/cache"
	"github.com/Willy-Angole/abilispace-sub002/internal/config"
	"github.com/Willy-Angole/abilispace-sub002/internal/handlers"
	"github.com/Willy-Angole/abilispace-sub002/internal/httpx"
	"github.com/Willy-Angole/abilispace-sub002/internal/middleware"
	"github.com/Willy-Angole/abilispace-sub002/internal/presence"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
	"github.com/Willy-Angole/abilispace-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}
	store := repository.NewStore(db)

	// Redis is optional; unread counts fall back to the database.
	var cachePinger handlers.Pinger
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = redisCache.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Warn("Redis connection failed, running without cache", "addr", cfg.RedisAddr, "err", err)
		_ = redisCache.Close()
		redisCache = nil
	} else {
		log.Info("Redis cache connected", "addr", cfg.RedisAddr)
		cachePinger = redisCache
		defer redisCache.Close()
	}
	unreadCache := cache.NewUnreadCache(redisCache)

	tracker := presence.NewTracker(log, cfg.TypingTTL)
	go func() {
		if err := tracker.Run(ctx, cfg.TypingSweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Typing sweeper stopped", "err", err)
		}
	}()

	svcCfg := service.Config{
		MaxMessageLength: cfg.MaxMessageLength,
		DefaultPageSize:  cfg.DefaultPageSize,
		MaxPageSize:      cfg.MaxPageSize,
		RetryBackoff:     cfg.StoreRetryBackoff,
	}
	conversationService := service.NewConversationService(store, unreadCache, log, svcCfg)
	messageService := service.NewMessageService(store, unreadCache, tracker, log, svcCfg)
	readService := service.NewReadService(store, unreadCache, log, svcCfg)
	typingService := service.NewTypingService(store, tracker, log, svcCfg)

	app := fiber.New(fiber.Config{
		AppName:   "Conversation Service",
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-OM-CSRF",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: cfg.AllowedOrigins != "",
	}))

	app.Get("/health", handlers.NewHealthHandler(store, cachePinger, log).Health)

	origins := cfg.Origins()
	api := app.Group("/api",
		middleware.OriginAllowed(origins),
		middleware.AuthRequired(cfg.JWTSecret),
		middleware.CSRFRequired(cfg.CSRFMode, origins),
		limiter.New(limiter.Config{
			Max:        120,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if uid, err := httpx.LocalUint(c, "userID"); err == nil {
					return "user:" + strconv.FormatUint(uint64(uid), 10)
				}
				return c.IP()
			},
		}),
	)
	handlers.NewConversationHandler(conversationService).Register(api)
	handlers.NewMessageHandler(messageService).Register(api)
	handlers.NewReadHandler(readService).Register(api)
	handlers.NewTypingHandler(typingService).Register(api)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server stopped cleanly")
	return nil
}
