// Package router wires handlers and middleware onto echo.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/dataloader"
	"github.com/anonto42/nano-pulse/backend/internal/handlers"
	"github.com/anonto42/nano-pulse/backend/internal/interactions"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/services"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
)

// Dependencies are the services the routes are built on.
type Dependencies struct {
	Store    repositories.Store
	Registry *interactions.Registry
	Toggler  *interactions.Toggler
	Tracker  *notifications.Tracker
	Posts    *services.PostService
	Comments *services.CommentService

	// JWT and Firebase verify bearer tokens; either may be nil but not both.
	JWT      *middleware.JWTVerifier
	Firebase middleware.TokenVerifier

	ToggleLimiter *middleware.ActorRateLimiter
	Logger        *zap.Logger
}

// NewDependencies builds the services over store and feed and registers the
// notification emitter on the toggles that notify.
func NewDependencies(store repositories.Store, feed changefeed.Feed, logger *zap.Logger) Dependencies {
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := notifications.NewEmitter(store, logger)
	toggler := interactions.NewToggler(store, logger)
	for _, rel := range []models.Relation{models.RelationLikes, models.RelationCommentLikes, models.RelationFollows} {
		toggler.OnCreate(rel, emitter.EdgeCreated)
	}

	return Dependencies{
		Store:    store,
		Registry: interactions.NewRegistry(store, feed, toggler, logger),
		Toggler:  toggler,
		Tracker:  notifications.NewTracker(store, feed, logger),
		Posts:    services.NewPostService(store, emitter, logger),
		Comments: services.NewCommentService(store, emitter, logger),
		Logger:   logger,
	}
}

func (d Dependencies) verifiers() []middleware.TokenVerifier {
	var out []middleware.TokenVerifier
	if d.JWT != nil {
		out = append(out, d.JWT)
	}
	if d.Firebase != nil {
		out = append(out, d.Firebase)
	}
	return out
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, logger *zap.Logger) {
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(logger)
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	logger.Debug("Global middleware configured")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, d Dependencies) {
	log := d.Logger

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "nano-pulse"})
	})

	if d.Firebase != nil && d.JWT != nil {
		authGroup := e.Group("/api/v1/auth")
		handlers.NewAuthHandler(d.Store, d.Firebase, d.JWT, log).RegisterAuthRoutes(authGroup)
		log.Debug("Auth routes configured")
	}

	// Every route accepts a bearer token; handlers that act on behalf of a
	// user reject anonymous requests themselves.
	api := e.Group("/api/v1",
		middleware.Authenticate(true, d.verifiers()...),
		dataloader.Middleware(d.Store),
	)

	handlers.NewUserHandler(d.Store, d.Store).RegisterProfileRoutes(api)
	handlers.NewPostHandler(d.Posts, d.Store).RegisterPostRoutes(api)
	handlers.NewCommentHandler(d.Comments, d.Store).RegisterCommentRoutes(api)
	handlers.NewInteractionHandler(d.Registry).RegisterInteractionRoutes(api)

	var toggleMW []echo.MiddlewareFunc
	if d.ToggleLimiter != nil {
		toggleMW = append(toggleMW, middleware.ToggleRateLimit(d.ToggleLimiter))
	}
	handlers.NewLikeHandler(d.Registry, d.Toggler, d.Store).RegisterLikeRoutes(api, toggleMW...)
	handlers.NewFollowHandler(d.Registry, d.Toggler, d.Store).RegisterFollowRoutes(api, toggleMW...)

	handlers.NewNotificationHandler(d.Tracker).RegisterNotificationRoutes(api)
	handlers.NewLiveHandler(d.Registry, d.Tracker, log).RegisterLiveRoutes(api)

	log.Info("All routes configured", zap.Int("routes", len(e.Routes())))
}
