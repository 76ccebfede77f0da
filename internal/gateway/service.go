package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/carelink/patient-platform/pkg/interfaces"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/types"
)

// RouteRule maps a path prefix to a downstream service. Rules are evaluated
// in order and the first matching prefix wins, so more specific prefixes
// must come before broader ones. Public rules bypass the admission filter;
// everything else requires a valid bearer token before it is forwarded.
type RouteRule struct {
	PathPrefix string
	Target     *url.URL
	Public     bool

	proxy *httputil.ReverseProxy
}

// Config holds the gateway configuration
type Config struct {
	Port            string
	JWTSecret       string
	JWTIssuer       string
	RateLimit       int
	RatePeriod      time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Service implements the API gateway. The routing table is mutable at
// runtime through the admin endpoints, so all access to rules goes through
// rulesMu.
type Service struct {
	router          *mux.Router
	server          *http.Server
	rulesMu         sync.RWMutex
	rules           []RouteRule
	rateLimiter     interfaces.RateLimiter
	tokenValidator  interfaces.TokenValidator
	logger          *logger.Logger
	metrics         *monitoring.MetricsCollector
	healthClient    *http.Client
	startTime       time.Time
	shutdownTimeout time.Duration
}

// BuildRouteRules constructs the ordered routing table for the platform.
// The login route is listed first and is the only public entry point; the
// catch-all auth prefix and the patient API both sit behind the filter.
func BuildRouteRules(authServiceURL, patientServiceURL string) ([]RouteRule, error) {
	authURL, err := url.Parse(authServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth service URL: %w", err)
	}

	patientURL, err := url.Parse(patientServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid patient service URL: %w", err)
	}

	return []RouteRule{
		{PathPrefix: "/auth/login", Target: authURL, Public: true},
		{PathPrefix: "/auth", Target: authURL},
		{PathPrefix: "/api/patients", Target: patientURL},
	}, nil
}

// NewService creates a new API gateway service
func NewService(config *Config, rules []RouteRule, rateLimiter interfaces.RateLimiter, log *logger.Logger) *Service {
	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	s := &Service{
		router:          mux.NewRouter(),
		rules:           make([]RouteRule, len(rules)),
		rateLimiter:     rateLimiter,
		tokenValidator:  NewTokenValidator(config.JWTSecret, config.JWTIssuer),
		logger:          log,
		metrics:         monitoring.NewMetricsCollector("api-gateway"),
		healthClient:    &http.Client{Timeout: 5 * time.Second},
		startTime:       time.Now(),
		shutdownTimeout: shutdownTimeout,
	}

	for i, rule := range rules {
		rule.proxy = s.newProxy(rule.Target)
		s.rules[i] = rule
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.server = &http.Server{
		Addr:         ":" + config.Port,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// newProxy builds the reverse proxy for a downstream target. The request
// path is forwarded unchanged; downstream services serve the same paths
// the gateway exposes.
func (s *Service) newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"target": target.String(),
		}).WithError(err).Error("Downstream request failed")

		s.metrics.RecordSystemError("bad_gateway", "proxy")
		s.writeErrorResponse(w, http.StatusBadGateway, types.ErrCodeInternalError, "service unavailable")
	}

	return proxy
}

// matchRule returns the first rule whose prefix matches the path. The rule
// is returned by value so in-flight requests keep a consistent view while
// admin calls mutate the table.
func (s *Service) matchRule(path string) (RouteRule, bool) {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	for _, rule := range s.rules {
		if strings.HasPrefix(path, rule.PathPrefix) {
			return rule, true
		}
	}
	return RouteRule{}, false
}

// snapshotRules copies the routing table for iteration outside the lock
func (s *Service) snapshotRules() []RouteRule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	rules := make([]RouteRule, len(s.rules))
	copy(rules, s.rules)
	return rules
}

// UpdateRoute re-targets the rule with the given prefix. The rule keeps its
// position and public flag; only the destination changes. Requests already
// inside the old proxy finish against the old target.
func (s *Service) UpdateRoute(prefix string, target *url.URL) (RouteRule, bool) {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	for i := range s.rules {
		if s.rules[i].PathPrefix == prefix {
			s.rules[i].Target = target
			s.rules[i].proxy = s.newProxy(target)
			return s.rules[i], true
		}
	}
	return RouteRule{}, false
}

// RemoveRoute deletes the rule with the given prefix. Later requests for
// the prefix fall through the table and are answered 404.
func (s *Service) RemoveRoute(prefix string) bool {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	for i := range s.rules {
		if s.rules[i].PathPrefix == prefix {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// ValidateToken validates a bearer token and returns the caller identity
func (s *Service) ValidateToken(tokenString string) (*types.UserClaims, error) {
	return s.tokenValidator.Validate(tokenString)
}

// targetStatus probes each distinct downstream target's health endpoint
func (s *Service) targetStatus() map[string]string {
	status := make(map[string]string)

	for _, rule := range s.snapshotRules() {
		target := rule.Target.String()
		if _, seen := status[target]; seen {
			continue
		}

		resp, err := s.healthClient.Get(target + "/health")
		if err != nil {
			status[target] = "unreachable"
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			status[target] = "healthy"
		} else {
			status[target] = "unhealthy"
		}
	}

	return status
}

// Start starts the API gateway server
func (s *Service) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting API gateway")
	return s.server.ListenAndServe()
}

// Stop gracefully stops the API gateway server
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Stopping API gateway")
	return s.server.Shutdown(ctx)
}

// Handler exposes the gateway's HTTP handler
func (s *Service) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up the routing. The admin prefix captures the rest of
// the path as the rule prefix, so PUT /admin/routes/api/patients addresses
// the /api/patients rule.
func (s *Service) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/health/detailed", s.handleDetailedHealth).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.HandleFunc("/admin/routes", s.handleListRoutes).Methods("GET")
	s.router.HandleFunc("/admin/routes/{prefix:.+}", s.handleUpdateRoute).Methods("PUT")
	s.router.HandleFunc("/admin/routes/{prefix:.+}", s.handleRemoveRoute).Methods("DELETE")

	// Everything else is resolved against the routing table
	s.router.PathPrefix("/").HandlerFunc(s.handleProxy)
}

// setupMiddleware sets up middleware. The admission filter runs before rate
// limiting so unauthenticated traffic is rejected without consuming quota.
func (s *Service) setupMiddleware() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.metrics.HTTPMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.admissionMiddleware)
	s.router.Use(s.rateLimitMiddleware)
}
