package interfaces

import (
	"context"

	"github.com/carelink/patient-platform/pkg/types"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	Authenticate(ctx context.Context, credentials *types.Credentials) (*types.TokenResponse, error)
	ValidateToken(token string) (*types.UserClaims, error)
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *types.User) error
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
	Count(ctx context.Context) (int, error)
}

// PasswordHasher defines the interface for password hashing and verification
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hashedPassword, password string) (bool, error)
}
