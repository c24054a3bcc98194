package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/interactions"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
)

// FollowHandler handles following users and subscribing to posts
type FollowHandler struct {
	registry *interactions.Registry
	toggler  *interactions.Toggler
	edges    repositories.EdgeRepository
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(registry *interactions.Registry, toggler *interactions.Toggler, edges repositories.EdgeRepository) *FollowHandler {
	return &FollowHandler{registry: registry, toggler: toggler, edges: edges}
}

// RegisterFollowRoutes registers follow and subscription routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/users/:id/follow/toggle", h.ToggleFollow, mw...)
	g.POST("/posts/:post_id/subscription/toggle", h.ToggleSubscription, mw...)
}

// ToggleFollow flips whether the actor follows a user
func (h *FollowHandler) ToggleFollow(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := c.Param("id")

	following, err := h.toggler.Toggle(ctx, actor, models.RelationFollows, userID)
	if err != nil {
		return err
	}
	count, err := h.edges.CountEdges(ctx, models.RelationFollows, userID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"following": following, "follower_count": count})
}

// ToggleSubscription flips whether the actor follows the comments of a post
func (h *FollowHandler) ToggleSubscription(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	view, err := h.registry.Acquire(ctx, c.Param("post_id"), actor)
	if err != nil {
		return err
	}
	defer view.Release()

	state, err := view.ToggleSubscribe(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, state)
}
