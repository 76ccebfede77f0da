package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/patient-platform/pkg/types"
)

type contextKey string

const userClaimsKey contextKey = "user_claims"

// Identity headers forwarded to downstream services after admission
const (
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"
)

// userClaimsFromContext returns the claims stashed by the admission filter
func userClaimsFromContext(ctx context.Context) (*types.UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*types.UserClaims)
	return claims, ok
}

// corsMiddleware handles CORS headers
func (s *Service) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Configure appropriately for production
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers
func (s *Service) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and responses
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		s.logger.HTTPRequest(r.Method, r.URL.Path, clientIP(r), recorder.statusCode,
			time.Since(start).Milliseconds())
	})
}

// admissionMiddleware is the fixed first gate in front of every downstream
// service. Requests without a valid bearer token are rejected here with 401
// and never reach a proxy rule; only rules marked public and the gateway's
// own operational endpoints are exempt.
func (s *Service) admissionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if rule, ok := s.matchRule(r.URL.Path); ok && rule.Public {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeErrorResponse(w, http.StatusUnauthorized, types.ErrCodeUnauthorized,
				"missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeErrorResponse(w, http.StatusUnauthorized, types.ErrCodeUnauthorized,
				"invalid authorization header format")
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			s.logger.WithError(err).Warn("Token validation failed")
			s.metrics.RecordAuthAttempt("bearer", "rejected")
			s.writeErrorResponse(w, http.StatusUnauthorized, types.ErrCodeUnauthorized,
				"invalid or expired token")
			return
		}

		s.metrics.RecordAuthAttempt("bearer", "accepted")

		// Set replaces any caller-supplied identity headers, so downstream
		// services only ever see the verified identity
		r.Header.Set(headerUserID, claims.UserID)
		r.Header.Set(headerUserEmail, claims.Email)

		ctx := context.WithValue(r.Context(), userClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware applies rate limiting after admission. Authenticated
// traffic is limited per user, anonymous traffic (the login route) per
// client address.
func (s *Service) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if claims, ok := userClaimsFromContext(r.Context()); ok {
			key = claims.UserID
		}

		allowed, err := s.rateLimiter.Allow(key)
		if err != nil {
			s.logger.WithError(err).Error("Rate limit check failed")
			s.writeErrorResponse(w, http.StatusInternalServerError, types.ErrCodeInternalError,
				"rate limit check failed")
			return
		}

		if !allowed {
			s.logger.WithField("client", key).Warn("Rate limit exceeded")
			s.writeErrorResponse(w, http.StatusTooManyRequests, types.ErrCodeRateLimitExceeded,
				"rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOpenPath reports whether the path is one of the gateway's own probe
// endpoints. The admin surface is not open: routing table changes require
// the same bearer token as any protected route.
func (s *Service) isOpenPath(path string) bool {
	return path == "/health" || path == "/health/detailed" || path == "/metrics"
}

// clientIP extracts the originating client address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder captures response status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
