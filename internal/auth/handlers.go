package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carelink/patient-platform/pkg/interfaces"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/types"
)

// Handlers contains HTTP handlers for auth operations
type Handlers struct {
	service interfaces.AuthService
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewHandlers creates new auth HTTP handlers
func NewHandlers(service interfaces.AuthService, log *logger.Logger, metrics *monitoring.MetricsCollector) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
		metrics: metrics,
	}
}

// RegisterRoutes registers auth routes with the router
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.GET("/validate", h.Validate)
	}
}

// Login handles credential verification and token issuance
func (h *Handlers) Login(c *gin.Context) {
	var credentials types.Credentials
	if err := c.ShouldBindJSON(&credentials); err != nil {
		h.logger.WithError(err).Debug("Invalid login request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": types.NewValidationError(types.ErrCodeInvalidRequest,
				"invalid request format", map[string]interface{}{"reason": err.Error()}),
		})
		return
	}

	token, err := h.service.Authenticate(c.Request.Context(), &credentials)
	if err != nil {
		h.metrics.RecordAuthAttempt("password", "failed")
		h.handleError(c, err)
		return
	}

	h.metrics.RecordAuthAttempt("password", "success")
	c.JSON(http.StatusOK, token)
}

// Validate reports whether the presented bearer token is valid
func (h *Handlers) Validate(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		h.handleError(c, types.NewUnauthenticatedError(types.ErrCodeUnauthorized,
			"missing authorization header"))
		return
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		h.handleError(c, types.NewUnauthenticatedError(types.ErrCodeUnauthorized,
			"invalid authorization header format"))
		return
	}

	claims, err := h.service.ValidateToken(parts[1])
	if err != nil {
		h.metrics.RecordAuthAttempt("token", "rejected")
		h.handleError(c, err)
		return
	}

	h.metrics.RecordAuthAttempt("token", "accepted")
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}

func (h *Handlers) handleError(c *gin.Context, err error) {
	var domainErr *types.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(statusFromKind(domainErr.Kind), gin.H{"error": domainErr})
		return
	}

	h.logger.WithError(err).Error("Internal server error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": types.NewInternalError(types.ErrCodeInternalError, "an internal error occurred", nil),
	})
}

func statusFromKind(kind types.ErrorKind) int {
	switch kind {
	case types.ErrorKindValidation:
		return http.StatusBadRequest
	case types.ErrorKindUnauthenticated:
		return http.StatusUnauthorized
	case types.ErrorKindNotFound:
		return http.StatusNotFound
	case types.ErrorKindConflict:
		return http.StatusConflict
	case types.ErrorKindRateLimit:
		return http.StatusTooManyRequests
	case types.ErrorKindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
