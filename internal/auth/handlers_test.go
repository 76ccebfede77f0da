package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/types"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Authenticate(ctx context.Context, credentials *types.Credentials) (*types.TokenResponse, error) {
	args := m.Called(ctx, credentials)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TokenResponse), args.Error(1)
}

func (m *MockAuthService) ValidateToken(token string) (*types.UserClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserClaims), args.Error(1)
}

func setupTestRouter(service *MockAuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := NewHandlers(service, logger.New("debug"), monitoring.NewMetricsCollector("auth-test"))
	handlers.RegisterRoutes(router)
	return router
}

func performLogin(router *gin.Engine, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestLoginHandler_Success(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	service.On("Authenticate", mock.Anything, mock.MatchedBy(func(credentials *types.Credentials) bool {
		return credentials.Email == "jane@example.com" && credentials.Password == "correct-password"
	})).Return(&types.TokenResponse{
		Token:     "signed.jwt.token",
		TokenType: "Bearer",
		ExpiresIn: 3600,
		IssuedAt:  time.Now().UTC(),
	}, nil)

	body, _ := json.Marshal(types.Credentials{Email: "jane@example.com", Password: "correct-password"})
	recorder := performLogin(router, body)

	assert.Equal(t, http.StatusOK, recorder.Code)

	var response types.TokenResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "signed.jwt.token", response.Token)
	assert.Equal(t, "Bearer", response.TokenType)

	service.AssertExpectations(t)
}

func TestLoginHandler_MalformedBody(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	recorder := performLogin(router, []byte("{not json"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	service.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestLoginHandler_MissingFields(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	recorder := performLogin(router, []byte(`{"email": "jane@example.com"}`))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	service.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	service.On("Authenticate", mock.Anything, mock.Anything).
		Return(nil, types.NewUnauthenticatedError(types.ErrCodeInvalidCredentials, "invalid email or password"))

	body, _ := json.Marshal(types.Credentials{Email: "jane@example.com", Password: "wrong"})
	recorder := performLogin(router, body)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	var response struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, types.ErrCodeInvalidCredentials, response.Error.Code)
}

func TestValidateHandler_ValidToken(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	service.On("ValidateToken", "valid-token").Return(&types.UserClaims{
		UserID: "user-123",
		Email:  "jane@example.com",
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, true, response["valid"])
	assert.Equal(t, "user-123", response["user_id"])
}

func TestValidateHandler_MissingHeader(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	service.AssertNotCalled(t, "ValidateToken", mock.Anything)
}

func TestValidateHandler_InvalidToken(t *testing.T) {
	service := &MockAuthService{}
	router := setupTestRouter(service)

	service.On("ValidateToken", "expired-token").
		Return(nil, types.NewUnauthenticatedError(types.ErrCodeTokenExpired, "token expired"))

	req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
