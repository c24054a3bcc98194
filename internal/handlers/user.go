package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
)

// UserHandler handles profile requests
type UserHandler struct {
	users repositories.UserRepository
	edges repositories.EdgeRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, edges repositories.EdgeRepository) *UserHandler {
	return &UserHandler{users: users, edges: edges}
}

// RegisterProfileRoutes registers profile routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.POST("/profile", h.CreateProfile) // Create own profile
	g.GET("/profile", h.GetProfile)     // Get own profile
	g.GET("/users/:id", h.GetUser)      // Get other user's profile by ID
}

// ProfileResponse is a profile with its follower count.
type ProfileResponse struct {
	models.UserCompact
	FollowerCount int64 `json:"follower_count"`
}

func (h *UserHandler) profile(c echo.Context, id string) error {
	ctx := c.Request().Context()
	user, err := h.users.GetUser(ctx, id)
	if err != nil {
		return err
	}
	followers, err := h.edges.CountEdges(ctx, models.RelationFollows, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ProfileResponse{UserCompact: user.ToCompact(), FollowerCount: followers})
}

// GetUser returns another user's profile
func (h *UserHandler) GetUser(c echo.Context) error {
	return h.profile(c, c.Param("id"))
}

// GetProfile returns the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	return h.profile(c, actor)
}

// CreateProfile creates the profile of the authenticated user. Usernames are
// unique; a taken one is a conflict.
func (h *UserHandler) CreateProfile(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req models.CreateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user := &models.User{
		ID:          actor,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}
	if err := h.users.CreateUser(c.Request().Context(), user); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, user.ToCompact())
}
