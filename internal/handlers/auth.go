package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
)

const tokenTTL = 72 * time.Hour

// AuthHandler exchanges Firebase ID tokens for API tokens
type AuthHandler struct {
	users    repositories.UserRepository
	firebase middleware.TokenVerifier
	signer   *middleware.JWTVerifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(users repositories.UserRepository, firebase middleware.TokenVerifier, signer *middleware.JWTVerifier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, firebase: firebase, signer: signer, logger: logger, now: time.Now}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/firebase-login", h.FirebaseLogin)
}

// FirebaseLogin verifies a Firebase ID token, creates the caller's profile on
// first login and returns a signed API token.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req models.FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	uid, err := h.firebase.Verify(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
	}

	user, err := h.users.GetUser(ctx, uid)
	created := false
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if req.Username == "" {
			return apperr.Invalid("username is required on first login")
		}
		user = &models.User{ID: uid, Username: req.Username}
		if err := h.users.CreateUser(ctx, user); err != nil {
			return err
		}
		created = true
		h.logger.Info("profile created on first login", zap.String("user_id", uid))
	case err != nil:
		return err
	}

	now := h.now()
	token, err := h.signer.Sign(models.JwtCustomClaims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return respond(c, status, echo.Map{"token": token, "user": user.ToCompact()})
}
