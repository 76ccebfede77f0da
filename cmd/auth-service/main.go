package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carelink/patient-platform/internal/auth"
	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/database"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("service", "auth-service").Info("Starting Auth Service")

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.CreateSchema(context.Background()); err != nil {
		log.WithError(err).Error("Failed to create database schema")
		os.Exit(1)
	}

	// Initialize auth components
	passwordManager := auth.NewPasswordManager()
	userRepo := auth.NewUserRepository(db.DB, log)
	authService := auth.NewService(cfg.JWT, log, userRepo, passwordManager)

	// Seed the first account on an empty deployment
	if err := authService.EnsureSeedUser(context.Background(), cfg.Auth); err != nil {
		log.WithError(err).Error("Failed to seed initial user")
		os.Exit(1)
	}

	// Initialize HTTP handlers
	metrics := monitoring.NewMetricsCollector("auth-service")
	handlers := auth.NewHandlers(authService, log, metrics)

	// Setup Gin router
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Health check endpoint backed by a database probe
	health := monitoring.NewHealthManager("auth-service",
		time.Duration(cfg.Monitoring.ProbeTimeout)*time.Second)
	health.Register("database", monitoring.NewDatabaseHealthChecker(db.DB))
	router.GET("/health", gin.WrapH(health.HTTPHandler()))

	// Register auth routes
	handlers.RegisterRoutes(router)

	// Setup HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("address", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to start HTTP server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Auth Service...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	log.Info("Auth Service stopped")
}
