package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
)

func TestToNotice(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "unauthenticated", err: apperr.ErrUnauthenticated, status: http.StatusUnauthorized, code: "unauthenticated", message: "unauthenticated"},
		{name: "conflict", err: fmt.Errorf("edge: %w", apperr.ErrConflict), status: http.StatusConflict, code: "conflict"},
		{name: "not found", err: apperr.NotFound("post", "p1"), status: http.StatusNotFound, code: "not_found", message: `post "p1": not found`},
		{name: "transient", err: apperr.Transient(errors.New("dial tcp: refused")), status: http.StatusServiceUnavailable, code: "unavailable", message: "Service Unavailable"},
		{name: "invalid", err: apperr.Invalid("bad"), status: http.StatusBadRequest, code: "invalid_argument", message: "bad: invalid argument"},
		{name: "forbidden", err: apperr.Forbidden("nope"), status: http.StatusForbidden, code: "forbidden"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal", message: "Internal Server Error"},
		{name: "echo error", err: echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests"), status: http.StatusTooManyRequests, code: "rate_limited", message: "Too many requests"},
		{name: "echo not found", err: echo.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := toNotice(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestHTTPErrorHandlerWritesJSONNotice(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(zap.NewNop())
	e.GET("/", func(c echo.Context) error { return apperr.NotFound("post", "p1") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"not_found","message":"post \"p1\": not found"}}`, rec.Body.String())
}
