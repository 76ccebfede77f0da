package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/carelink/patient-platform/pkg/types"
)

// routeView is the admin wire shape for one routing rule
type routeView struct {
	PathPrefix string `json:"path_prefix"`
	Target     string `json:"target"`
	Public     bool   `json:"public"`
}

func viewOf(rule RouteRule) routeView {
	return routeView{
		PathPrefix: rule.PathPrefix,
		Target:     rule.Target.String(),
		Public:     rule.Public,
	}
}

// handleHealth handles health check requests
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.targetStatus()

	overall := "healthy"
	for _, st := range status {
		if st != "healthy" {
			overall = "degraded"
			break
		}
	}

	response := map[string]interface{}{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"targets":   status,
	}

	statusCode := http.StatusOK
	if overall != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSONResponse(w, statusCode, response)
}

// handleDetailedHealth reports per-target health with probe latency
func (s *Service) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	overall := "healthy"
	targets := make(map[string]interface{})

	seen := make(map[string]bool)
	for _, rule := range s.snapshotRules() {
		target := rule.Target.String()
		if seen[target] {
			continue
		}
		seen[target] = true

		start := time.Now()
		resp, err := s.healthClient.Get(target + "/health")
		duration := time.Since(start)

		targetStatus := map[string]interface{}{
			"url":              target,
			"response_time_ms": duration.Milliseconds(),
		}

		if err != nil {
			targetStatus["status"] = "unreachable"
			targetStatus["error"] = err.Error()
			overall = "degraded"
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				targetStatus["status"] = "healthy"
			} else {
				targetStatus["status"] = "unhealthy"
				targetStatus["status_code"] = resp.StatusCode
				overall = "degraded"
			}
		}

		targets[target] = targetStatus
	}

	response := map[string]interface{}{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"targets":   targets,
		"gateway": map[string]interface{}{
			"status": "healthy",
			"uptime": time.Since(s.startTime).String(),
		},
	}

	statusCode := http.StatusOK
	if overall == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSONResponse(w, statusCode, response)
}

// handleListRoutes lists the routing table in evaluation order
func (s *Service) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	rules := s.snapshotRules()

	routes := make([]routeView, 0, len(rules))
	for _, rule := range rules {
		routes = append(routes, viewOf(rule))
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"routes": routes,
		"count":  len(routes),
	})
}

// handleUpdateRoute re-targets one routing rule. The rule prefix arrives
// without its leading slash: PUT /admin/routes/api/patients addresses the
// /api/patients rule.
func (s *Service) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + mux.Vars(r)["prefix"]

	var body struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, types.ErrCodeInvalidRequest,
			"invalid request body")
		return
	}

	target, err := url.Parse(body.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, types.ErrCodeInvalidRequest,
			"target must be an absolute URL")
		return
	}

	rule, ok := s.UpdateRoute(prefix, target)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, types.ErrCodeRouteNotFound,
			"no rule for prefix")
		return
	}

	s.auditRouteChange(r, "route_update", prefix, map[string]interface{}{
		"target": target.String(),
	})
	s.writeJSONResponse(w, http.StatusOK, viewOf(rule))
}

// handleRemoveRoute deletes one routing rule
func (s *Service) handleRemoveRoute(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + mux.Vars(r)["prefix"]

	if !s.RemoveRoute(prefix) {
		s.writeErrorResponse(w, http.StatusNotFound, types.ErrCodeRouteNotFound,
			"no rule for prefix")
		return
	}

	s.auditRouteChange(r, "route_remove", prefix, nil)
	w.WriteHeader(http.StatusNoContent)
}

// auditRouteChange records a routing table change with the acting admin's
// identity from the admission filter.
func (s *Service) auditRouteChange(r *http.Request, action, prefix string, details map[string]interface{}) {
	actor := ""
	if claims, ok := userClaimsFromContext(r.Context()); ok {
		actor = claims.UserID
	}
	s.logger.Audit(actor, action, prefix, true, details)
}

// handleProxy forwards the request to the first matching route rule
func (s *Service) handleProxy(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.matchRule(r.URL.Path)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, types.ErrCodeRouteNotFound,
			"no route for path")
		return
	}

	rule.proxy.ServeHTTP(w, r)
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response in the platform error shape
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error": &types.DomainError{
			Kind:    kindFromStatus(statusCode),
			Code:    code,
			Message: message,
		},
	})
}

// kindFromStatus maps HTTP status codes to error kinds
func kindFromStatus(statusCode int) types.ErrorKind {
	switch statusCode {
	case http.StatusBadRequest:
		return types.ErrorKindValidation
	case http.StatusUnauthorized:
		return types.ErrorKindUnauthenticated
	case http.StatusNotFound:
		return types.ErrorKindNotFound
	case http.StatusConflict:
		return types.ErrorKindConflict
	case http.StatusTooManyRequests:
		return types.ErrorKindRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.ErrorKindExternal
	default:
		return types.ErrorKindInternal
	}
}
