package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/interactions"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
	maxFrameSize = 4096
)

// Live message types.
const (
	msgState         = "state"
	msgNotifications = "notifications"
	msgUnreadCount   = "unread_count"
	msgError         = "error"
)

type liveMessage struct {
	Type   string              `json:"type"`
	State  *interactions.State `json:"state,omitempty"`
	Groups []GroupResponse     `json:"groups,omitempty"`
	Count  *int64              `json:"count,omitempty"`
	Error  *errorBody          `json:"error,omitempty"`
}

// liveCommand is sent by clients on a post socket.
type liveCommand struct {
	Action string `json:"action"`
}

// LiveHandler pushes interaction state and notifications over websockets.
type LiveHandler struct {
	registry *interactions.Registry
	tracker  *notifications.Tracker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewLiveHandler creates a new LiveHandler
func NewLiveHandler(registry *interactions.Registry, tracker *notifications.Tracker, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		registry: registry,
		tracker:  tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(zap.String("component", "live")),
	}
}

// RegisterLiveRoutes registers the websocket routes. The post socket accepts
// anonymous viewers; the notification socket does not.
func (h *LiveHandler) RegisterLiveRoutes(g *echo.Group) {
	g.GET("/ws/posts/:post_id", h.PostSocket)
	g.GET("/ws/notifications", h.NotificationSocket)
}

// conn serializes writes to a websocket and keeps it alive with pings.
type conn struct {
	ws     *websocket.Conn
	logger *zap.Logger
}

func (c *conn) write(msg liveMessage) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// readLoop reads client frames until the connection fails, passing each
// decoded command to commands. done is closed when reading stops.
func (c *conn) readLoop(commands chan<- liveCommand, done chan<- struct{}) {
	defer close(done)
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		var cmd liveCommand
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if commands == nil {
			continue
		}
		select {
		case commands <- cmd:
		default:
			c.logger.Debug("dropping command while busy", zap.String("action", cmd.Action))
		}
	}
}

func errorMessage(err error) liveMessage {
	_, body := toNotice(err)
	return liveMessage{Type: msgError, Error: &body}
}

// PostSocket streams a viewer's interaction state on a post. Clients may
// send {"action":"toggle_like"} or {"action":"toggle_subscribe"}.
func (h *LiveHandler) PostSocket(c echo.Context) error {
	viewer := middleware.Actor(c)
	postID := c.Param("post_id")

	// Resolve the post before upgrading so a missing post is a plain 404.
	view, err := h.registry.Acquire(c.Request().Context(), postID, viewer)
	if err != nil {
		return err
	}
	defer view.Release()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer ws.Close()
	cn := &conn{ws: ws, logger: h.logger.With(zap.String("post_id", postID))}

	state := view.State()
	if err := cn.write(liveMessage{Type: msgState, State: &state}); err != nil {
		return nil
	}

	commands := make(chan liveCommand, 1)
	done := make(chan struct{})
	go cn.readLoop(commands, done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case st, open := <-view.Updates():
			if !open {
				return nil
			}
			if err := cn.write(liveMessage{Type: msgState, State: &st}); err != nil {
				return nil
			}
		case cmd := <-commands:
			if err := h.runCommand(ctx, view, viewer, cmd); err != nil {
				if err := cn.write(errorMessage(err)); err != nil {
					return nil
				}
			}
		case <-ticker.C:
			if err := cn.ping(); err != nil {
				return nil
			}
		}
	}
}

// runCommand applies a client toggle. The resulting state reaches the
// client through the view's updates.
func (h *LiveHandler) runCommand(ctx context.Context, view *interactions.View, viewer string, cmd liveCommand) error {
	if viewer == "" {
		return apperr.ErrUnauthenticated
	}
	var err error
	switch cmd.Action {
	case "toggle_like":
		_, err = view.ToggleLike(ctx)
	case "toggle_subscribe":
		_, err = view.ToggleSubscribe(ctx)
	default:
		err = apperr.Invalid("unknown action " + cmd.Action)
	}
	return err
}

// NotificationSocket streams the recipient's grouped notifications and
// unread count. Opening it counts as viewing the list, so everything is
// marked read once.
func (h *LiveHandler) NotificationSocket(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	view, err := h.tracker.Open(ctx, actor, filter)
	if err != nil {
		return err
	}
	defer view.Close()
	counter, err := h.tracker.WatchUnread(ctx, actor)
	if err != nil {
		return err
	}
	defer counter.Close()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer ws.Close()
	cn := &conn{ws: ws, logger: h.logger.With(zap.String("recipient_id", actor))}

	if err := cn.write(liveMessage{Type: msgNotifications, Groups: presentGroups(notifications.Group(view.Initial(), filter))}); err != nil {
		return nil
	}
	count := counter.Count()
	if err := cn.write(liveMessage{Type: msgUnreadCount, Count: &count}); err != nil {
		return nil
	}

	done := make(chan struct{})
	go cn.readLoop(nil, done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case groups, open := <-view.Updates():
			if !open {
				return nil
			}
			if err := cn.write(liveMessage{Type: msgNotifications, Groups: presentGroups(groups)}); err != nil {
				return nil
			}
		case n, open := <-counter.Updates():
			if !open {
				return nil
			}
			if err := cn.write(liveMessage{Type: msgUnreadCount, Count: &n}); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := cn.ping(); err != nil {
				return nil
			}
		}
	}
}
