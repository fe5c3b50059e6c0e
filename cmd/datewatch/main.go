// Package main wires together the datewatch service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"datewatch/internal/config"
	"datewatch/internal/logging"
	"datewatch/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	app, err := server.NewApp(ctx, &cfg, logger)
	if err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}
	if err := app.Run(ctx); err != nil {
		logger.Fatal("app run failed", zap.Error(err))
	}
}
