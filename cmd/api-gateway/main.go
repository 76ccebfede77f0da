package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/carelink/patient-platform/internal/gateway"
	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
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
	log.WithField("service", "api-gateway").Info("Starting API Gateway")

	// Build the ordered routing table
	rules, err := gateway.BuildRouteRules(cfg.Gateway.AuthServiceURL, cfg.Gateway.PatientServiceURL)
	if err != nil {
		log.WithError(err).Error("Failed to build route rules")
		os.Exit(1)
	}

	// Create gateway configuration
	gatewayConfig := &gateway.Config{
		Port:            strconv.Itoa(cfg.Server.Port),
		JWTSecret:       cfg.JWT.SecretKey,
		JWTIssuer:       cfg.JWT.Issuer,
		RateLimit:       cfg.RateLimit.RequestsPerMin,
		RatePeriod:      time.Minute,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}

	// Create rate limiter
	rateLimiter := gateway.NewRateLimiter(gatewayConfig.RateLimit, gatewayConfig.RatePeriod)
	if cfg.RateLimit.Enabled {
		rateLimiter.StartCleanup(time.Duration(cfg.RateLimit.CleanupInterval) * time.Second)
	}

	// Create gateway service
	service := gateway.NewService(gatewayConfig, rules, rateLimiter, log)

	// Start server in a goroutine
	go func() {
		log.WithField("port", gatewayConfig.Port).Info("API Gateway listening")
		if err := service.Start(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Gateway server stopped unexpectedly")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API Gateway...")

	if err := service.Stop(); err != nil {
		log.WithError(err).Error("Gateway forced to shutdown")
		os.Exit(1)
	}

	log.Info("API Gateway stopped")
}
