package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/carelink/patient-platform/internal/patient"
	"github.com/carelink/patient-platform/pkg/broker"
	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/database"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/repository"
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
	log.WithField("service", "patient-service").Info("Starting Patient Service")

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

	// Connect to the event broker
	eventBroker, err := broker.Connect(&cfg.Broker, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to event broker")
		os.Exit(1)
	}
	defer eventBroker.Close()

	publisher, err := patient.NewQueuePublisher(eventBroker, cfg.Broker, log)
	if err != nil {
		log.WithError(err).Error("Failed to set up event publisher")
		os.Exit(1)
	}

	// Initialize patient components
	metrics := monitoring.NewMetricsCollector("patient-service")
	patientRepo := repository.NewPatientRepository(db.DB, log, metrics)
	billingClient := patient.NewBillingClient(cfg.Billing, log)
	patientService := patient.NewService(patientRepo, billingClient, publisher, cfg.Billing, log, metrics)
	handlers := patient.NewHandlers(patientService, log)

	// Health probes cover the two runtime dependencies
	health := monitoring.NewHealthManager("patient-service",
		time.Duration(cfg.Monitoring.ProbeTimeout)*time.Second)
	health.Register("database", monitoring.NewDatabaseHealthChecker(db.DB))
	health.Register("broker", monitoring.NewBrokerHealthChecker(eventBroker.Health))

	// Export the connection pool size so dashboards can watch for saturation
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.RecordDBConnection(cfg.Database.Name, db.Stats().OpenConnections)
		}
	}()

	// Setup router
	router := mux.NewRouter()
	router.Use(metrics.HTTPMiddleware)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.Handle("/health", health.HTTPHandler()).Methods(http.MethodGet)

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

	log.Info("Shutting down Patient Service...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	log.Info("Patient Service stopped")
}
