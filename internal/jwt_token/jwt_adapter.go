package jwttoken

import (
	"piivault/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *CallerTokenClaims) *middleware.CallerClaims {
	return &middleware.CallerClaims{
		Subject:    claims.Subject,
		Permission: claims.Permission,
	}
}

// JWTServiceAdapter satisfies middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.CallerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
