package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ActorKey is the echo context key holding the authenticated user id.
const ActorKey = "actor"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Actor returns the authenticated user id, or "" for an anonymous request.
func Actor(c echo.Context) string {
	actor, _ := c.Get(ActorKey).(string)
	return actor
}

// bearerToken reads the Authorization header. Websocket clients cannot set
// headers, so an access_token query parameter is accepted as well.
func bearerToken(c echo.Context) (string, bool, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("access_token"); token != "" {
			return token, true, nil
		}
		return "", false, nil
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", true, echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
	}
	return parts[1], true, nil
}

// Authenticate verifies the bearer token with each verifier in turn and
// stores the first resolved user id under ActorKey. A request without a
// token is rejected unless optional is set, in which case it continues as
// anonymous. A token that is present but invalid is always rejected.
func Authenticate(optional bool, verifiers ...TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, present, err := bearerToken(c)
			if err != nil {
				return err
			}
			if !present {
				if optional {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
			}

			for _, v := range verifiers {
				actor, err := v.Verify(c.Request().Context(), token)
				if err == nil && actor != "" {
					c.Set(ActorKey, actor)
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}
	}
}
