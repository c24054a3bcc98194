package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	tracker *notifications.Tracker
	now     func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(tracker *notifications.Tracker) *NotificationHandler {
	return &NotificationHandler{tracker: tracker, now: time.Now}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/read", h.MarkAsRead)
}

// NotificationResponse is a notification as shown to its recipient. The
// actor id stays server-side so anonymous sources cannot be unmasked.
type NotificationResponse struct {
	ID          string                  `json:"id"`
	Type        models.NotificationType `json:"type"`
	Content     string                  `json:"content"`
	ReferenceID string                  `json:"reference_id"`
	GroupID     *string                 `json:"group_id,omitempty"`
	PostID      *string                 `json:"post_id,omitempty"`
	IsRead      bool                    `json:"is_read"`
	CreatedAt   time.Time               `json:"created_at"`
}

// GroupResponse is a display group of notifications.
type GroupResponse struct {
	notifications.Cluster
	Notifications []NotificationResponse `json:"notifications"`
}

func presentGroups(clusters []notifications.Cluster) []GroupResponse {
	out := make([]GroupResponse, len(clusters))
	for i, cl := range clusters {
		out[i] = GroupResponse{Cluster: cl, Notifications: make([]NotificationResponse, len(cl.Notifications))}
		for j, n := range cl.Notifications {
			out[i].Notifications[j] = NotificationResponse{
				ID:          n.ID,
				Type:        n.Type,
				Content:     n.Content,
				ReferenceID: n.ReferenceID,
				GroupID:     n.GroupID,
				PostID:      n.PostID,
				IsRead:      n.IsRead,
				CreatedAt:   n.CreatedAt,
			}
		}
	}
	return out
}

// parseFilter reads ?type= (repeated or comma separated) and ?unread=true.
func parseFilter(c echo.Context) (notifications.Filter, error) {
	var f notifications.Filter
	for _, raw := range c.QueryParams()["type"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t := models.NotificationType(part)
			if !t.Valid() {
				return f, apperr.Invalid("unknown notification type " + part)
			}
			f.Types = append(f.Types, t)
		}
	}
	f.UnreadOnly = c.QueryParam("unread") == "true"
	return f, nil
}

// GetNotifications mounts the notification list: it returns the groups as
// loaded, with their unread markers, and marks every notification of the
// recipient read.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	view, err := h.tracker.Open(c.Request().Context(), actor, filter)
	if err != nil {
		return err
	}
	defer view.Close()

	initial := view.Initial()
	unread := 0
	for _, n := range initial {
		if !n.IsRead {
			unread++
		}
	}
	return respond(c, http.StatusOK, echo.Map{
		"groups":       presentGroups(notifications.Group(initial, filter)),
		"unread_count": unread,
	})
}

// GetGroupedNotifications returns the groups bucketed by day without
// marking anything read.
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	list, err := h.tracker.List(ctx, actor, filter)
	if err != nil {
		return err
	}
	unreadCount, err := h.tracker.UnreadCount(ctx, actor)
	if err != nil {
		return err
	}

	b := notifications.Bucket(notifications.Group(list, filter), h.now())
	return respond(c, http.StatusOK, echo.Map{
		"notifications": echo.Map{
			"today":     presentGroups(b.Today),
			"yesterday": presentGroups(b.Yesterday),
			"this_week": presentGroups(b.ThisWeek),
			"older":     presentGroups(b.Older),
		},
		"unread_count": unreadCount,
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	count, err := h.tracker.UnreadCount(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"count": count})
}

// MarkAsRead marks the given notifications of the actor read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req models.MarkReadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	n, err := h.tracker.MarkRead(c.Request().Context(), actor, req.IDs)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"updated": n})
}
