package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/dataloader"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/services"
)

const maxPageSize = 100

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	posts *services.PostService
	users repositories.UserRepository
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(posts *services.PostService, users repositories.UserRepository) *PostHandler {
	return &PostHandler{posts: posts, users: users}
}

// RegisterPostRoutes registers post routes. Reads are open to anonymous
// viewers.
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts", h.ListPosts)
	g.GET("/posts/:post_id", h.GetPost)
	g.PUT("/posts/:post_id", h.UpdatePost)
	g.DELETE("/posts/:post_id", h.DeletePost)
}

// PostResponse is a post with its author's profile. Author is nil when the
// post is anonymous to the viewer.
type PostResponse struct {
	models.Post
	Author *models.UserCompact `json:"author,omitempty"`
}

func (h *PostHandler) present(ctx context.Context, posts []models.Post) ([]PostResponse, error) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID != "" {
			ids = append(ids, p.AuthorID)
		}
	}
	profiles, err := dataloader.Profiles(ctx, h.users, ids)
	if err != nil {
		return nil, err
	}

	out := make([]PostResponse, len(posts))
	for i, p := range posts {
		out[i] = PostResponse{Post: p}
		if author, ok := profiles[p.AuthorID]; ok {
			out[i].Author = &author
		}
	}
	return out, nil
}

// CreatePost handles creating a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.posts.Create(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	out, err := h.present(c.Request().Context(), []models.Post{*post})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, out[0])
}

// GetPost handles fetching a single post
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.posts.Get(c.Request().Context(), middleware.Actor(c), c.Param("post_id"))
	if err != nil {
		return err
	}
	out, err := h.present(c.Request().Context(), []models.Post{*post})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, out[0])
}

// ListPosts returns a page of posts, newest first, optionally by one author.
func (h *PostHandler) ListPosts(c echo.Context) error {
	q := repositories.PostQuery{
		AuthorID: c.QueryParam("author_id"),
		Limit:    queryInt(c, "limit", services.DefaultPageSize, maxPageSize),
		Offset:   queryInt(c, "offset", 0, 0),
	}
	posts, err := h.posts.List(c.Request().Context(), middleware.Actor(c), q)
	if err != nil {
		return err
	}
	out, err := h.present(c.Request().Context(), posts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    out,
		"meta": echo.Map{
			"limit":  q.Limit,
			"offset": q.Offset,
			"count":  len(out),
		},
	})
}

// UpdatePost handles editing the content of the actor's own post
func (h *PostHandler) UpdatePost(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req models.UpdatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.posts.UpdateContent(c.Request().Context(), actor, c.Param("post_id"), req.Content)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, post.ForViewer(actor))
}

// DeletePost handles deleting the actor's own post
func (h *PostHandler) DeletePost(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if err := h.posts.Delete(c.Request().Context(), actor, c.Param("post_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
