package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/skillforge/internal/config"
	"github.com/felixgeelhaar/skillforge/internal/daemon"
	"github.com/felixgeelhaar/skillforge/internal/logging"
	"github.com/felixgeelhaar/skillforge/internal/queue"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFileName = "skillforged.pid"

func main() {
	withWorker := flag.Bool("worker", false, "also consume queued submissions in this process")
	flag.Parse()

	if err := run(*withWorker); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run(withWorker bool) error {
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("ensure skillforge dir: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:     filepath.Join(dir, "logs"),
		Name:    "skillforged",
		Level:   logging.ParseLevel(cfg.Server.LogLevel),
		Console: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	pidPath := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := daemon.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	daemon.Version = Version
	server, err := daemon.NewServer(daemon.ServerConfig{
		Addr:               cfg.Addr(),
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		Services:           app.Services,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if withWorker {
		if app.Conn == nil {
			return errors.New("--worker needs a reachable RABBITMQ_URL")
		}
		consumer := queue.NewConsumer(app.Conn, app.JobHandler(), queue.ConsumerConfig{
			Workers: cfg.Queue.Workers,
			Logger:  logger,
		})
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer consumer.Stop()
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("received signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("daemon stopped")
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
