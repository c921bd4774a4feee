package main

import (
	"fmt"
	"log"
	"net/http"

	"mosaic/internal/api"
	"mosaic/internal/api/handlers"
	"mosaic/internal/api/middleware"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/pkg/logger"
	"mosaic/internal/platform/audit"
	"mosaic/internal/platform/auth"
	"mosaic/internal/platform/config"
	"mosaic/internal/platform/database"
	"mosaic/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Repositories
	configRepo := repositories.NewConfigurationRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	// Engine
	configCache := webhooks.NewConfigCache(cfg.Webhooks.ConfigCacheTTL)
	processor := webhooks.NewProcessor(eventRepo, configRepo, webhooks.DefaultProcess, cfg.Webhooks)
	processor.Start()
	defer processor.Stop()

	ingestService := webhooks.NewService(configRepo, eventRepo, configCache, processor)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLogger := audit.NewLogger(db)

	// Handlers
	ingestHandler := handlers.NewIngestHandler(ingestService, cfg.CORS)
	configHandler := handlers.NewConfigHandler(configRepo, ingestService, auditLogger)
	eventHandler := handlers.NewEventHandler(eventRepo, processor, auditLogger)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	tenantMiddleware := middleware.NewTenantMiddleware()
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	router := api.NewRouter(&api.Dependencies{
		IngestHandler:    ingestHandler,
		ConfigHandler:    configHandler,
		EventHandler:     eventHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
		TenantMiddleware: tenantMiddleware,
		RateLimiter:      rateLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
