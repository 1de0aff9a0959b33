package jwttoken

import (
	"certexport/internal/platform/middleware"
)

// JWTServiceAdapter satisfies middleware.JWTValidator, keeping the
// middleware free of the claims type.
type JWTServiceAdapter struct {
	service *JWTService
}

// NewJWTServiceAdapter wraps service for the auth middleware.
func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes(),
		JTI:     claims.ID,
	}, nil
}
