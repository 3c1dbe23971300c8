package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"posbridge/internal/clickhouse"
	"posbridge/internal/rabbitmq"
	"posbridge/internal/workers"
	"posbridge/pkg/logger"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Copy order sync events from RabbitMQ into ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RabbitMQ.URL == "" {
				return fmt.Errorf("RABBITMQ_URL is required for the worker")
			}
			log := logger.L()
			log.Info("🚀 Starting sync log worker...")
			log.Infof("  - ClickHouse: %s:%d/%s", cfg.ClickHouse.Host, cfg.ClickHouse.Port, cfg.ClickHouse.Database)

			chClient, err := clickhouse.NewClient(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("failed to connect to ClickHouse: %w", err)
			}
			defer chClient.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = chClient.EnsureSchema(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to create ClickHouse tables: %w", err)
			}
			log.Info("✓ Connected to ClickHouse")

			consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQ)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			log.Info("✓ Connected to RabbitMQ")

			worker := workers.NewSyncLogWorker(consumer, chClient, cfg.RabbitMQ.SyncQueue)
			done := make(chan error, 1)
			go func() { done <- worker.Start() }()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-done:
				consumer.Close()
				return err
			case <-sigChan:
			}

			log.Info("🛑 Shutting down worker...")
			consumer.Close()
			<-done
			log.Info("✓ Worker stopped gracefully")
			return nil
		},
	}
}
