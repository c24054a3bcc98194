package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/interactions"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
)

// InteractionHandler serves a viewer's interaction state on a post
type InteractionHandler struct {
	registry *interactions.Registry
}

// NewInteractionHandler creates a new InteractionHandler
func NewInteractionHandler(registry *interactions.Registry) *InteractionHandler {
	return &InteractionHandler{registry: registry}
}

// RegisterInteractionRoutes registers the interaction state route. Anonymous
// viewers get counts only.
func (h *InteractionHandler) RegisterInteractionRoutes(g *echo.Group) {
	g.GET("/posts/:post_id/interactions", h.GetInteractions)
}

// GetInteractions returns liked, subscribed and the like and comment counts
func (h *InteractionHandler) GetInteractions(c echo.Context) error {
	view, err := h.registry.Acquire(c.Request().Context(), c.Param("post_id"), middleware.Actor(c))
	if err != nil {
		return err
	}
	defer view.Release()
	return respond(c, http.StatusOK, view.State())
}
