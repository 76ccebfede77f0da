package interfaces

import (
	"github.com/carelink/patient-platform/pkg/types"
)

// TokenValidator defines the interface for bearer credential validation.
// Validation is local, synchronous and side-effect free.
type TokenValidator interface {
	Validate(token string) (*types.UserClaims, error)
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(clientID string) (bool, error)
	Reset(clientID string) error
}
