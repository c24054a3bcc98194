package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck handles health check requests
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "nano-pulse-backend",
	})
}
