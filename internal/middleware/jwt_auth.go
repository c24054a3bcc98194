package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWTVerifier checks HS256 tokens carrying a user_id claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier for secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify returns the token's user_id claim.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.UserID == "" {
		return "", errors.New("token has no user_id claim")
	}
	return claims.UserID, nil
}

// Sign issues a token for userID. It is used by tests and local tooling.
func (v *JWTVerifier) Sign(claims models.JwtCustomClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// JWTAuthMiddleware checks for a valid JWT and stores its user id.
func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return Authenticate(false, NewJWTVerifier(secret))
}
