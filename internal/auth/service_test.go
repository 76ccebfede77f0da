package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/types"
)

// Mock implementations for testing

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) VerifyPassword(hashedPassword, password string) (bool, error) {
	args := m.Called(hashedPassword, password)
	return args.Bool(0), args.Error(1)
}

// Test setup helper
func setupTestService() (*Service, *MockUserRepository, *MockPasswordHasher) {
	jwtConfig := config.JWTConfig{
		SecretKey:      "test-secret-key",
		AccessTokenTTL: 3600,
		Issuer:         "test-issuer",
	}

	userRepo := &MockUserRepository{}
	passwords := &MockPasswordHasher{}
	service := NewService(jwtConfig, logger.New("debug"), userRepo, passwords)

	return service, userRepo, passwords
}

func activeUser() *types.User {
	return &types.User{
		ID:           "user-123",
		Email:        "jane@example.com",
		PasswordHash: "$2a$10$hash",
		FullName:     "Jane Doe",
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestAuthenticate_Success(t *testing.T) {
	service, userRepo, passwords := setupTestService()

	user := activeUser()
	userRepo.On("GetByEmail", mock.Anything, "jane@example.com").Return(user, nil)
	passwords.On("VerifyPassword", user.PasswordHash, "correct-password").Return(true, nil)

	token, err := service.Authenticate(context.Background(), &types.Credentials{
		Email:    "jane@example.com",
		Password: "correct-password",
	})

	require.NoError(t, err)
	require.NotNil(t, token)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	// The issued token must validate and carry the user identity
	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)

	userRepo.AssertExpectations(t)
	passwords.AssertExpectations(t)
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	service, userRepo, _ := setupTestService()

	userRepo.On("GetByEmail", mock.Anything, "nobody@example.com").
		Return(nil, types.NewNotFoundError("USER_NOT_FOUND", "user not found"))

	token, err := service.Authenticate(context.Background(), &types.Credentials{
		Email:    "nobody@example.com",
		Password: "whatever",
	})

	require.Error(t, err)
	assert.Nil(t, token)

	var domainErr *types.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, types.ErrorKindUnauthenticated, domainErr.Kind)
	assert.Equal(t, types.ErrCodeInvalidCredentials, domainErr.Code)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	service, userRepo, passwords := setupTestService()

	user := activeUser()
	userRepo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	passwords.On("VerifyPassword", user.PasswordHash, "wrong-password").Return(false, nil)

	token, err := service.Authenticate(context.Background(), &types.Credentials{
		Email:    user.Email,
		Password: "wrong-password",
	})

	require.Error(t, err)
	assert.Nil(t, token)

	var domainErr *types.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, types.ErrCodeInvalidCredentials, domainErr.Code)
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	service, userRepo, _ := setupTestService()

	user := activeUser()
	user.IsActive = false
	userRepo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	token, err := service.Authenticate(context.Background(), &types.Credentials{
		Email:    user.Email,
		Password: "correct-password",
	})

	require.Error(t, err)
	assert.Nil(t, token)

	var domainErr *types.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, types.ErrCodeInvalidCredentials, domainErr.Code)
}

// All login failure modes must be indistinguishable to the caller
func TestAuthenticate_FailuresIndistinguishable(t *testing.T) {
	service, userRepo, passwords := setupTestService()

	inactive := activeUser()
	inactive.ID = "user-inactive"
	inactive.Email = "inactive@example.com"
	inactive.IsActive = false

	known := activeUser()

	userRepo.On("GetByEmail", mock.Anything, "nobody@example.com").
		Return(nil, types.NewNotFoundError("USER_NOT_FOUND", "user not found"))
	userRepo.On("GetByEmail", mock.Anything, inactive.Email).Return(inactive, nil)
	userRepo.On("GetByEmail", mock.Anything, known.Email).Return(known, nil)
	passwords.On("VerifyPassword", known.PasswordHash, "wrong").Return(false, nil)

	attempts := []*types.Credentials{
		{Email: "nobody@example.com", Password: "wrong"},
		{Email: inactive.Email, Password: "wrong"},
		{Email: known.Email, Password: "wrong"},
	}

	var messages []string
	for _, credentials := range attempts {
		_, err := service.Authenticate(context.Background(), credentials)
		require.Error(t, err)

		var domainErr *types.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, types.ErrCodeInvalidCredentials, domainErr.Code)
		messages = append(messages, domainErr.Message)
	}

	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
}

func TestValidateToken_Expired(t *testing.T) {
	service, userRepo, passwords := setupTestService()

	// Issue a token that is already expired
	service.jwtConfig.AccessTokenTTL = -60

	user := activeUser()
	userRepo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	passwords.On("VerifyPassword", user.PasswordHash, "correct-password").Return(true, nil)

	token, err := service.Authenticate(context.Background(), &types.Credentials{
		Email:    user.Email,
		Password: "correct-password",
	})
	require.NoError(t, err)

	_, err = service.ValidateToken(token.Token)
	require.Error(t, err)

	var domainErr *types.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, types.ErrCodeTokenExpired, domainErr.Code)
}

func TestValidateToken_Garbage(t *testing.T) {
	service, _, _ := setupTestService()

	for _, tokenString := range []string{"", "garbage", "a.b.c"} {
		_, err := service.ValidateToken(tokenString)
		require.Error(t, err)

		var domainErr *types.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, types.ErrorKindUnauthenticated, domainErr.Kind)
	}
}

func TestEnsureSeedUser_CreatesWhenEmpty(t *testing.T) {
	service, userRepo, passwords := setupTestService()

	seed := config.AuthConfig{
		SeedEmail:    "admin@example.com",
		SeedPassword: "bootstrap-password",
		SeedName:     "Platform Admin",
	}

	userRepo.On("Count", mock.Anything).Return(0, nil)
	passwords.On("HashPassword", seed.SeedPassword).Return("$2a$10$seedhash", nil)
	userRepo.On("Create", mock.Anything, mock.MatchedBy(func(user *types.User) bool {
		return user.Email == seed.SeedEmail && user.PasswordHash == "$2a$10$seedhash" && user.IsActive
	})).Return(nil)

	err := service.EnsureSeedUser(context.Background(), seed)
	require.NoError(t, err)

	userRepo.AssertExpectations(t)
	passwords.AssertExpectations(t)
}

func TestEnsureSeedUser_SkipsWhenUsersExist(t *testing.T) {
	service, userRepo, _ := setupTestService()

	userRepo.On("Count", mock.Anything).Return(3, nil)

	err := service.EnsureSeedUser(context.Background(), config.AuthConfig{
		SeedEmail:    "admin@example.com",
		SeedPassword: "bootstrap-password",
	})
	require.NoError(t, err)

	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEnsureSeedUser_DisabledWithoutEmail(t *testing.T) {
	service, userRepo, _ := setupTestService()

	err := service.EnsureSeedUser(context.Background(), config.AuthConfig{})
	require.NoError(t, err)

	userRepo.AssertNotCalled(t, "Count", mock.Anything)
}
