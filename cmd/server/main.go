package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/datashare/internal/anonymize"
	"github.com/localnerve/datashare/internal/config"
	"github.com/localnerve/datashare/internal/database"
	"github.com/localnerve/datashare/internal/handlers"
	"github.com/localnerve/datashare/internal/logging"
	"github.com/localnerve/datashare/internal/metrics"
	"github.com/localnerve/datashare/internal/middleware"
	"github.com/localnerve/datashare/internal/notify"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/storage"
	"github.com/localnerve/datashare/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/localnerve/datashare/docs/api" // Swagger docs
)

// @title Datashare API
// @version 1.0.0
// @description Research dataset access proposals and column-level desensitization
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/datashare
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	appLog, err := logging.Init(logging.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	if err := run(appLog); err != nil {
		appLog.Fatal("server failed", zap.Error(err))
	}
	appLog.Info("server stopped")
}

func run(appLog *zap.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(cfg, appLog)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	// Artifact store
	store, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}

	// Column-action engine
	masker, err := anonymize.NewMasker([]byte(cfg.MaskSecret))
	if err != nil {
		return err
	}
	engine := anonymize.NewEngine(masker, anonymize.Options{})

	// Proposal notifications
	var notifier notify.Notifier = notify.NewLogNotifier(appLog)
	if cfg.RedisURL != "" {
		redisNotifier, err := notify.NewRedisNotifierFromURL(cfg.RedisURL, cfg.NotifyChannel)
		if err != nil {
			return err
		}
		defer redisNotifier.Close()
		notifier = redisNotifier
		appLog.Info("publishing proposal events to redis", zap.String("channel", cfg.NotifyChannel))
	}

	validator, err := services.NewIdentityValidator(cfg, appLog)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	projects := services.NewProjectService(db, appLog)
	proposals := services.NewProposalService(db, services.AccessGranter{}, notifier, m, appLog)
	datasets, err := services.NewDatasetService(db, store, engine, m, appLog, services.DatasetOptions{
		PreviewRows:   cfg.PreviewRows,
		CacheSize:     cfg.PreviewCacheSize,
		IngestTimeout: cfg.IngestTimeout,
	})
	if err != nil {
		return err
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.MaxUploadBytes + 1<<20,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prom := fiberprometheus.New("datashare")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	handlers.RegisterRoutes(api, middleware.Auth(validator), handlers.Handlers{
		Project: &handlers.ProjectHandler{
			Projects:       projects,
			Datasets:       datasets,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		Proposal: &handlers.ProposalHandler{Proposals: proposals},
		User:     &handlers.UserHandler{Projects: projects},
		Health: &handlers.HealthHandler{
			Config: cfg,
			DB:     db,
			Store:  store,
			Log:    appLog,
		},
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "[404] Resource Not Found")
	})

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		appLog.Info("gracefully shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	appLog.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("artifact_backend", cfg.ArtifactBackend),
	)
	return app.Listen(":" + cfg.Port)
}

// customErrorHandler renders errors that escape handlers in the standard envelope
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	errorType := "unknown"
	conflict := false

	var ce *types.CustomError
	var fe *fiber.Error
	switch {
	case errors.As(err, &ce):
		code = ce.Code
		message = ce.Message
		errorType = ce.Type
		conflict = ce.Kind == types.KindConflict
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
		errorType = "http"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"conflict":  conflict,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}
