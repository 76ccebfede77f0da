package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
)

// DB wraps the PostgreSQL connection pool shared by a service's
// repositories and health checks.
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// NewConnection opens a pool against the configured database and verifies
// it is reachable before handing it out. Pool limits come from
// configuration so each deployment can size them per service.
func NewConnection(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"host":           cfg.Host,
		"database":       cfg.Name,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("Database pool ready")

	return &DB{DB: pool, logger: log}, nil
}

// Health reports whether the pool can still reach the server. Used by the
// per-service health endpoints.
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
