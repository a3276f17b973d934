package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/felixgeelhaar/skillforge/internal/config"
	"github.com/felixgeelhaar/skillforge/internal/daemon"
	"github.com/felixgeelhaar/skillforge/internal/logging"
	"github.com/felixgeelhaar/skillforge/internal/queue"
)

// cmdWorker grades queued submissions until interrupted
func cmdWorker() error {
	dir, err := config.EnsureDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:     filepath.Join(dir, "logs"),
		Name:    "worker",
		Level:   logging.ParseLevel(cfg.Server.LogLevel),
		Console: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	if cfg.Queue.URL == "" {
		return errors.New("no broker configured (set RABBITMQ_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := daemon.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Conn == nil {
		return errors.New("broker unreachable")
	}

	consumer := queue.NewConsumer(app.Conn, app.JobHandler(), queue.ConsumerConfig{
		Workers: cfg.Queue.Workers,
		Logger:  logger,
	})
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	logger.Info("worker started", "workers", cfg.Queue.Workers)

	<-ctx.Done()
	consumer.Stop()
	return nil
}
