package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/dataloader"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/services"
)

// CommentHandler handles HTTP requests related to comments
type CommentHandler struct {
	comments *services.CommentService
	users    repositories.UserRepository
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(comments *services.CommentService, users repositories.UserRepository) *CommentHandler {
	return &CommentHandler{comments: comments, users: users}
}

// RegisterCommentRoutes registers comment routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/comments", h.CreateComment)
	g.GET("/posts/:post_id/comments", h.GetComments)
}

// CommentResponse is a comment with its author's profile.
type CommentResponse struct {
	models.Comment
	Author *models.UserCompact `json:"author,omitempty"`
}

// CreateComment handles creating a comment or a reply on a post
func (h *CommentHandler) CreateComment(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	comment, err := h.comments.Create(ctx, actor, c.Param("post_id"), req)
	if err != nil {
		return err
	}

	resp := CommentResponse{Comment: *comment}
	profiles, err := dataloader.Profiles(ctx, h.users, []string{actor})
	if err != nil {
		return err
	}
	if author, ok := profiles[actor]; ok {
		resp.Author = &author
	}
	return respond(c, http.StatusCreated, resp)
}

// GetComments returns a post's comments oldest first
func (h *CommentHandler) GetComments(c echo.Context) error {
	ctx := c.Request().Context()
	comments, err := h.comments.List(ctx, middleware.Actor(c), c.Param("post_id"))
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(comments))
	for _, cm := range comments {
		if cm.AuthorID != "" {
			ids = append(ids, cm.AuthorID)
		}
	}
	profiles, err := dataloader.Profiles(ctx, h.users, ids)
	if err != nil {
		return err
	}

	out := make([]CommentResponse, len(comments))
	for i, cm := range comments {
		out[i] = CommentResponse{Comment: cm}
		if author, ok := profiles[cm.AuthorID]; ok {
			out[i].Author = &author
		}
	}
	return respond(c, http.StatusOK, out)
}
