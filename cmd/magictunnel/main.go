// Package main is the entry point for the MagicTunnel proxy server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magictunnel/magictunnel/cmd/magictunnel/app"
	"github.com/magictunnel/magictunnel/pkg/logger"
)

func main() {
	logger.Initialize(os.Stderr, slog.LevelInfo, logger.OSEnv)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
