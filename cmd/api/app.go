package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/infrastructure"
)

// app holds what every subcommand needs: configuration, a logger and the store
type app struct {
	config   *infrastructure.Config
	logger   *zap.Logger
	database *infrastructure.Database
}

func newApp() (*app, error) {
	config, err := infrastructure.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.NewLogger(config.Server.Environment, config.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := infrastructure.NewDatabase(&config.Database, logger)
	if err != nil {
		infrastructure.SyncLogger(logger)
		return nil, err
	}

	return &app{config: config, logger: logger, database: database}, nil
}

func (a *app) close() {
	if err := a.database.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	infrastructure.SyncLogger(a.logger)
}

// sectionFallback names the sections shown while the catalog is empty
func (a *app) sectionFallback() []string {
	if len(a.config.Catalog.SheetTypes) > 0 {
		return a.config.Catalog.SheetTypes
	}
	return infrastructure.DefaultSheetTypes
}
