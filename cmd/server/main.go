package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"lims-forms/internal/admin"
	"lims-forms/internal/auth"
	"lims-forms/internal/client"
	"lims-forms/internal/config"
	"lims-forms/internal/draft"
	"lims-forms/internal/engine"
	"lims-forms/internal/form"
	"lims-forms/internal/logging"
	"lims-forms/internal/metadata"
	"lims-forms/internal/storage"
	"lims-forms/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Build logger
	zl, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zl.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("backend", cfg.Backend.BaseURL))

	// 3. Connect to database and bootstrap system tables
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		zl.Fatal("failed to bootstrap system tables", zap.Error(err))
	}
	zl.Info("database ready", zap.String("dialect", db.Dialect.Name()))

	// 4. Draft store: the database, a directory of files, or process memory
	var drafts draft.Store
	switch cfg.Drafts.Driver {
	case "memory":
		drafts = draft.NewMemoryStore()
		zl.Warn("drafts kept in memory; they will not survive a restart")
	case "file":
		local, err := storage.NewLocalStorage(cfg.Drafts.Dir)
		if err != nil {
			zl.Fatal("failed to prepare draft directory", zap.String("dir", cfg.Drafts.Dir), zap.Error(err))
		}
		drafts = local
	default:
		drafts = draft.NewSQLStore(db)
	}

	// 5. Form registry: built-in forms, JSON definitions, then stored ones
	reg := metadata.NewDefaultRegistry()
	if n, err := metadata.LoadDir(cfg.FormsDir, reg, zl); err != nil {
		zl.Warn("failed to load form definitions", zap.String("dir", cfg.FormsDir), zap.Error(err))
	} else if n > 0 {
		zl.Info("form definitions loaded", zap.Int("count", n))
	}
	if n, err := admin.LoadStored(ctx, db, reg, zl); err != nil {
		zl.Fatal("failed to load stored form definitions", zap.Error(err))
	} else if n > 0 {
		zl.Info("stored form definitions loaded", zap.Int("count", n))
	}

	// 6. Backend client
	backend := client.New(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		client.WithExportPath(cfg.Backend.ExportPath))

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.NewErrorHandler(zl),
		BodyLimit:    int(cfg.Server.MaxUploadSize) + 1<<20,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Form and session routes (auth required)
	sessions := form.NewManager(zl)
	handler := engine.NewHandler(reg, sessions,
		draft.New(drafts, cfg.Drafts.Namespace, zl),
		client.NewServices(backend), zl)
	fileHandler := engine.NewFileHandler(handler, cfg.Server.MaxUploadSize)
	engine.RegisterRoutes(app, handler, fileHandler, auth.AuthMiddleware(cfg.JWTSecret))

	// 10. Admin routes (auth + admin role required)
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, reg, zl),
		auth.AuthMiddleware(cfg.JWTSecret), auth.RequireAdmin())

	// 11. Start idle-session sweeper
	sweeper := engine.NewSessionSweeper(sessions, cfg.Sessions.IdleTimeout, cfg.Sessions.SweepInterval, zl)
	sweeper.Start()
	defer sweeper.Stop()

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zl.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zl.Error("server stopped", zap.Error(err))
	}
}
