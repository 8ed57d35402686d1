package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/pawboard/pawboard/internal/config"
	"github.com/pawboard/pawboard/internal/events"
	"github.com/pawboard/pawboard/internal/httpserver"
	"github.com/pawboard/pawboard/internal/middleware"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/internal/tokenstore"
	"github.com/pawboard/pawboard/internal/ws"
	"github.com/pawboard/pawboard/pkg/db"
	"github.com/pawboard/pawboard/pkg/logging"
	loggingmw "github.com/pawboard/pawboard/pkg/middleware/logging"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_ACCESS_SECRET")

	logger := logging.New(cfg.LogLevel)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gormDB, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := repo.AutoMigrate(gormDB); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := tokenstore.NewRedisStore(redisClient)

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)

	repository := repo.New(gormDB)
	tokenSvc := &service.TokenService{
		Repo:       repository,
		Store:      store,
		Secret:     cfg.JWTAccessSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}

	registry := ws.NewRegistry(logger)
	messageSvc := &service.MessageService{
		Repo:     repository,
		Sink:     registry,
		Producer: producer,
	}

	e := echo.New()
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: tokenSvc},
		ChatHandler: &httpserver.ChatHTTP{Repo: repository, Messages: messageSvc},
		WSHandler:   ws.NewHandler(registry, tokenSvc, messageSvc),
		AuthMW:      middleware.NewAuth(tokenSvc, repository),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("server_started", "port", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	registry.Shutdown()

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}
	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown_complete")
}
