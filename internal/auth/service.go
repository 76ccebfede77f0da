package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/interfaces"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/types"
)

// Service implements credential verification and token issuance
type Service struct {
	jwtConfig config.JWTConfig
	logger    *logger.Logger
	userRepo  interfaces.UserRepository
	passwords interfaces.PasswordHasher
}

// NewService creates a new auth service instance
func NewService(jwtConfig config.JWTConfig, log *logger.Logger, userRepo interfaces.UserRepository, passwords interfaces.PasswordHasher) *Service {
	return &Service{
		jwtConfig: jwtConfig,
		logger:    log,
		userRepo:  userRepo,
		passwords: passwords,
	}
}

// authClaims is the token payload this service issues
type authClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// invalidCredentials is returned for every login failure mode so callers
// cannot tell an unknown email from a wrong password or a disabled account.
func invalidCredentials() *types.DomainError {
	return types.NewUnauthenticatedError(types.ErrCodeInvalidCredentials, "invalid email or password")
}

// Authenticate verifies the submitted credentials and returns a signed
// bearer token on success
func (s *Service) Authenticate(ctx context.Context, credentials *types.Credentials) (*types.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, credentials.Email)
	if err != nil {
		s.logger.WithField("email", credentials.Email).Debug("Login attempt for unknown email")
		return nil, invalidCredentials()
	}

	if !user.IsActive {
		s.logger.WithField("user_id", user.ID).Warn("Login attempt for inactive account")
		return nil, invalidCredentials()
	}

	ok, err := s.passwords.VerifyPassword(user.PasswordHash, credentials.Password)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "password verification failed", err)
	}
	if !ok {
		s.logger.WithField("user_id", user.ID).Debug("Login attempt with wrong password")
		return nil, invalidCredentials()
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to issue token", err)
	}

	s.logger.Audit(user.ID, "login", "auth", true, nil)

	return &types.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.jwtConfig.AccessTokenTTL),
		IssuedAt:  time.Now().UTC(),
	}, nil
}

// ValidateToken verifies a token previously issued by this service and
// returns the identity it carries
func (s *Service) ValidateToken(tokenString string) (*types.UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if s.jwtConfig.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.jwtConfig.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.SecretKey), nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewUnauthenticatedError(types.ErrCodeTokenExpired, "token expired")
		}
		return nil, types.NewUnauthenticatedError(types.ErrCodeTokenInvalid, "invalid token")
	}

	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, types.NewUnauthenticatedError(types.ErrCodeTokenInvalid, "invalid token claims")
	}

	return &types.UserClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
	}, nil
}

// EnsureSeedUser creates the initial account when the users table is empty.
// Without it a fresh deployment has no way to obtain a first token.
func (s *Service) EnsureSeedUser(ctx context.Context, seed config.AuthConfig) error {
	if seed.SeedEmail == "" {
		return nil
	}

	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := s.passwords.HashPassword(seed.SeedPassword)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	now := time.Now().UTC()
	user := &types.User{
		ID:           uuid.New().String(),
		Email:        seed.SeedEmail,
		PasswordHash: hash,
		FullName:     seed.SeedName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	s.logger.WithField("email", seed.SeedEmail).Info("Created seed user")
	return nil
}

// issueToken signs a bearer token for the authenticated user
func (s *Service) issueToken(user *types.User) (string, error) {
	now := time.Now()

	claims := &authClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.jwtConfig.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.jwtConfig.AccessTokenTTL) * time.Second)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtConfig.SecretKey))
}
