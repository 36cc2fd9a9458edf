package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/bootstrap"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/config"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events/kafka"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).With(
		slog.String("app", "hris-leave-ledger-consumer"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Error("KAFKA_BROKERS is required for the consumer")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.LeaveTopic)
	defer publisher.Close()

	stack, err := bootstrap.NewLeaveStack(ctx, cfg, publisher)
	if err != nil {
		slog.Error("Failed to initialize leave service", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	consumer := kafka.NewReconciliationConsumer(cfg.Kafka.Brokers, cfg.Kafka.ReconcileTopic, cfg.Kafka.GroupID, stack.Service, logger)
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		slog.Error("Consumer stopped with error", "error", err)
	}
}
