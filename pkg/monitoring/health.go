package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthStatus classifies a component or service as a whole.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the result of probing one dependency.
type ComponentHealth struct {
	Status     HealthStatus           `json:"status"`
	Message    string                 `json:"message,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// HealthReport aggregates the component probes of one service.
type HealthReport struct {
	Service   string                     `json:"service"`
	Status    HealthStatus               `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// HealthChecker probes a single dependency.
type HealthChecker interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthManager runs registered probes concurrently and rolls their
// statuses up into one report: any unhealthy component marks the service
// unhealthy, otherwise any degraded component marks it degraded.
type HealthManager struct {
	service string
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager builds a manager for the named service. Each probe is
// bounded by probeTimeout so one stuck dependency cannot hang the health
// endpoint.
func NewHealthManager(service string, probeTimeout time.Duration) *HealthManager {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	return &HealthManager{
		service:  service,
		timeout:  probeTimeout,
		checkers: make(map[string]HealthChecker),
	}
}

// Register adds a named dependency probe.
func (hm *HealthManager) Register(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// Report probes every registered dependency and aggregates the results.
func (hm *HealthManager) Report(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	checkers := make([]HealthChecker, 0, len(hm.checkers))
	for name, checker := range hm.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	timeout := hm.timeout
	hm.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker HealthChecker) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := checker.Check(probeCtx)
			result.DurationMS = time.Since(start).Milliseconds()
			results[i] = result
		}(i, checker)
	}
	wg.Wait()

	report := &HealthReport{
		Service:   hm.service,
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]ComponentHealth, len(results)),
	}

	for i, result := range results {
		report.Checks[names[i]] = result

		switch result.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	return report
}

// HTTPHandler serves the aggregated report. Degraded still answers 200 so
// orchestrators do not restart a service that is merely under pressure;
// only unhealthy turns into 503.
func (hm *HealthManager) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := hm.Report(r.Context())

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	})
}

// DatabaseHealthChecker probes the PostgreSQL pool.
type DatabaseHealthChecker struct {
	db *sql.DB
}

// NewDatabaseHealthChecker wraps an open pool.
func NewDatabaseHealthChecker(db *sql.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

// Check pings the database and inspects pool pressure. A pool running at
// its open-connection ceiling still serves requests, so saturation is
// reported degraded rather than unhealthy.
func (c *DatabaseHealthChecker) Check(ctx context.Context) ComponentHealth {
	if err := c.db.PingContext(ctx); err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	stats := c.db.Stats()
	health := ComponentHealth{
		Status: StatusHealthy,
		Details: map[string]interface{}{
			"open":       stats.OpenConnections,
			"in_use":     stats.InUse,
			"idle":       stats.Idle,
			"wait_count": stats.WaitCount,
		},
	}

	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		health.Status = StatusDegraded
		health.Message = "connection pool saturated"
	}

	return health
}

// BrokerHealthChecker wraps the event broker's own Health method so this
// package stays free of AMQP imports.
type BrokerHealthChecker struct {
	probe func() error
}

// NewBrokerHealthChecker wraps a broker health probe.
func NewBrokerHealthChecker(probe func() error) *BrokerHealthChecker {
	return &BrokerHealthChecker{probe: probe}
}

// Check reports the broker connection state.
func (c *BrokerHealthChecker) Check(ctx context.Context) ComponentHealth {
	if err := c.probe(); err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("broker unreachable: %v", err),
		}
	}

	return ComponentHealth{Status: StatusHealthy}
}
