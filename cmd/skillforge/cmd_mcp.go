package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/felixgeelhaar/skillforge/internal/config"
	"github.com/felixgeelhaar/skillforge/internal/daemon"
	"github.com/felixgeelhaar/skillforge/internal/logging"
	"github.com/felixgeelhaar/skillforge/internal/mcp"
)

// cmdMCP runs the MCP server in-process, on stdio unless --http is given
func cmdMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	httpAddr := fs.String("http", "", "serve MCP over HTTP on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries the protocol, so logs only go to the file
	logger, logFile, err := logging.Setup(logging.Options{
		Dir:   filepath.Join(dir, "logs"),
		Name:  "mcp",
		Level: logging.ParseLevel(cfg.Server.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := daemon.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcp.NewServer(mcp.Config{
		Version:   Version,
		Content:   app.Services.Content,
		Grader:    app.Submitter(),
		Progress:  app.Services.Progress,
		Analytics: app.Services.Analytics,
		Logger:    logger,
	})

	if *httpAddr != "" {
		return srv.ServeHTTP(ctx, *httpAddr)
	}
	return srv.ServeStdio(ctx)
}
