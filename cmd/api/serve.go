package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/data"
	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/handler"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/middleware"
	"github.com/sheet-tracker/backend/internal/repository"
	"github.com/sheet-tracker/backend/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	config, logger := a.config, a.logger
	logger.Info("Starting Sheet Tracker API",
		zap.String("environment", config.Server.Environment),
		zap.Int("port", config.Server.Port),
		zap.String("database_driver", config.Database.Driver),
	)

	telemetry, err := infrastructure.NewTelemetry(ctx, &config.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.CreateMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	if err := a.database.AutoMigrate(); err != nil {
		return err
	}

	// Repositories
	userRepo := repository.NewUserRepository(a.database.DB)
	problemRepo := repository.NewProblemRepository(a.database.DB)
	if config.Redis.Enabled {
		redisClient, err := infrastructure.NewRedisClient(ctx, &config.Redis, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		problemRepo = repository.NewCachedProblemRepository(problemRepo, redisClient, config.Redis.CacheTTL, logger)
	}

	// Services
	catalogService := service.NewCatalogService(problemRepo, a.sectionFallback(), telemetry.Tracer, logger, metrics)
	progressService := service.NewProgressService(userRepo, catalogService, telemetry.Tracer, logger, metrics)
	userService := service.NewUserService(userRepo, &config.JWT, config.Catalog.AdminEmails, telemetry.Tracer, logger)
	validator := importer.NewValidator(config.Catalog.SheetTypes)

	if config.Kafka.Enabled {
		writer := infrastructure.NewKafkaWriter(&config.Kafka)
		publisher := infrastructure.NewCatalogEventPublisher(writer, config.Kafka.Topic, logger)
		defer publisher.Close()
		catalogService.Subscribe(publisher)
	}

	hub := handler.NewStreamHub(config.Server.CORSOrigins, logger, metrics)
	catalogService.Subscribe(hub)

	if config.Catalog.Seed {
		seeder := data.NewSeeder(catalogService, validator, logger)
		if _, err := seeder.SeedProblems(ctx); err != nil {
			logger.Warn("Failed to seed catalog", zap.Error(err))
		}
	}

	if config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(middleware.NewCORSConfig(config.Server.CORSOrigins)))
	router.Use(middleware.TracingMiddleware(telemetry.Tracer))
	router.Use(middleware.MetricsMiddleware(metrics))

	router.GET("/health", func(c *gin.Context) {
		if err := a.database.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": config.Telemetry.ServiceVersion,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, handler.Handlers{
		Auth:    handler.NewAuthHandler(userService),
		User:    handler.NewUserHandler(userService, progressService),
		Problem: handler.NewProblemHandler(catalogService, progressService),
		Admin:   handler.NewAdminHandler(catalogService, validator, domain.ParseBatchPolicy(config.Catalog.BatchPolicy)),
		Stream:  hub,
	}, userService)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
