package gateway

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carelink/patient-platform/pkg/types"
)

// TokenValidator checks bearer token signatures and expiry. It holds no
// session state; two calls with the same token and clock always agree.
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// jwtClaims is the token payload issued by the auth service
type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Validate parses and verifies a bearer token and returns the caller identity.
// Every failure mode maps to an unauthenticated error so the admission filter
// can reject without leaking why.
func (tv *TokenValidator) Validate(tokenString string) (*types.UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewUnauthenticatedError(types.ErrCodeTokenExpired, "token expired")
		}
		return nil, types.NewUnauthenticatedError(types.ErrCodeTokenInvalid, "invalid token")
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, types.NewUnauthenticatedError(types.ErrCodeTokenInvalid, "invalid token claims")
	}

	if claims.Subject == "" {
		return nil, types.NewUnauthenticatedError(types.ErrCodeTokenInvalid, "token missing subject")
	}

	return &types.UserClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
	}, nil
}
