package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/tixledger/docs"
	"github.com/kirinyoku/tixledger/internal/app"
	"github.com/kirinyoku/tixledger/internal/config"
	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
)

// @title tixledger API
// @version 1.0
// @description Ticket issuance and verification ledger.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", sl.Err(err))
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", sl.Err(err))
		os.Exit(1)
	}
}
