package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var statusByCode = map[string]int{
	"unauthenticated":  http.StatusUnauthorized,
	"conflict":         http.StatusConflict,
	"not_found":        http.StatusNotFound,
	"unavailable":      http.StatusServiceUnavailable,
	"invalid_argument": http.StatusBadRequest,
	"forbidden":        http.StatusForbidden,
	"internal":         http.StatusInternalServerError,
}

var codeByStatus = map[int]string{
	http.StatusBadRequest:         "invalid_argument",
	http.StatusUnauthorized:       "unauthenticated",
	http.StatusForbidden:          "forbidden",
	http.StatusNotFound:           "not_found",
	http.StatusMethodNotAllowed:   "method_not_allowed",
	http.StatusConflict:           "conflict",
	http.StatusTooManyRequests:    "rate_limited",
	http.StatusServiceUnavailable: "unavailable",
}

// toNotice maps err onto a status and the body sent to the client. Details
// of server-side failures are not exposed.
func toNotice(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code, ok := codeByStatus[he.Code]
		if !ok {
			code = strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		}
		msg, ok := he.Message.(string)
		if !ok || he.Code >= http.StatusInternalServerError {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorBody{Code: code, Message: msg}
	}

	code := apperr.Code(err)
	status := statusByCode[code]
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return status, errorBody{Code: code, Message: msg}
}

// NewHTTPErrorHandler renders every error as a single JSON notice and logs
// server-side failures.
func NewHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := toNotice(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, errorResponse{Error: body})
		}
		if err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}
