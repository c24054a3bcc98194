package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/interactions"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
)

// LikeHandler handles like toggles on posts and comments
type LikeHandler struct {
	registry *interactions.Registry
	toggler  *interactions.Toggler
	edges    repositories.EdgeRepository
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(registry *interactions.Registry, toggler *interactions.Toggler, edges repositories.EdgeRepository) *LikeHandler {
	return &LikeHandler{registry: registry, toggler: toggler, edges: edges}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/posts/:post_id/likes/toggle", h.TogglePostLike, mw...)
	g.POST("/comments/:id/likes/toggle", h.ToggleCommentLike, mw...)
}

// TogglePostLike flips the actor's like on a post and returns the post's
// interaction state after the toggle.
func (h *LikeHandler) TogglePostLike(c echo.Context) error {
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

	state, err := view.ToggleLike(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, state)
}

// ToggleCommentLike flips the actor's like on a comment
func (h *LikeHandler) ToggleCommentLike(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	commentID := c.Param("id")

	liked, err := h.toggler.Toggle(ctx, actor, models.RelationCommentLikes, commentID)
	if err != nil {
		return err
	}
	count, err := h.edges.CountEdges(ctx, models.RelationCommentLikes, commentID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"liked": liked, "like_count": count})
}
