package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/bootstrap"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/config"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events/kafka"
	appHTTP "github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/redis"
	"github.com/go-chi/httplog/v3"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "development")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hris-leave-ledger"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher leave.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.LeaveTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	stack, err := bootstrap.NewLeaveStack(ctx, cfg, publisher)
	if err != nil {
		slog.Error("Failed to initialize leave service", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	routerCfg := appHTTP.RouterConfig{
		Logger:         logger,
		AllowedOrigins: cfg.App.AllowedOrigins,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	}
	if cfg.RateLimit.RPS > 0 {
		routerCfg.RateLimiter = middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		routerCfg.Redis = rdb
	}

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	leaveHandler := appHTTP.NewLeaveHandler(stack.Service)
	router := appHTTP.NewRouter(routerCfg, JWTService, leaveHandler)

	err = bootstrap.RunHTTPServer(ctx, router, bootstrap.ServerConfig{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	if err != nil {
		slog.Error("Server error", "error", err)
	}
}
