package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/repositories/inmemory"
	"github.com/anonto42/nano-pulse/backend/internal/router"
	"github.com/anonto42/nano-pulse/backend/validators"
)

type testApp struct {
	e      *echo.Echo
	store  repositories.Store
	signer *middleware.JWTVerifier
}

func newApp(t *testing.T, limiter *middleware.ActorRateLimiter) *testApp {
	t.Helper()
	broker := changefeed.NewBroker(nil)
	store := repositories.WithPublishing(inmemory.New(), broker)

	deps := router.NewDependencies(store, broker, zap.NewNop())
	deps.JWT = middleware.NewJWTVerifier("handler-test-secret")
	if limiter == nil {
		limiter = middleware.NewActorRateLimiter(rate.Inf, 1)
	}
	deps.ToggleLimiter = limiter

	e := echo.New()
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e, zap.NewNop())
	router.SetupRoutes(e, deps)

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.CreateUser(context.Background(), &models.User{ID: name, Username: name}))
	}
	return &testApp{e: e, store: store, signer: deps.JWT}
}

func (a *testApp) token(t *testing.T, user string) string {
	t.Helper()
	token, err := a.signer.Sign(models.JwtCustomClaims{UserID: user})
	require.NoError(t, err)
	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testApp) do(t *testing.T, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, user))
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

type postBody struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	Author       *struct {
		Username string `json:"username"`
	} `json:"author"`
}

type stateBody struct {
	Liked        bool  `json:"liked"`
	Subscribed   bool  `json:"subscribed"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	Deleted      bool  `json:"deleted"`
}

type groupBody struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	Unread        bool   `json:"unread"`
	Summary       string `json:"summary"`
	Notifications []struct {
		ID      string `json:"id"`
		IsRead  bool   `json:"is_read"`
		ActorID string `json:"actor_id"`
	} `json:"notifications"`
}

type listBody struct {
	Groups      []groupBody `json:"groups"`
	UnreadCount int         `json:"unread_count"`
}

func (a *testApp) createPost(t *testing.T, user, content string, anonymous bool) postBody {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/posts", user, models.CreatePostRequest{Content: content, Anonymous: anonymous})
	require.Equal(t, http.StatusCreated, status)
	return decode[postBody](t, env.Data)
}

func TestHealthCheck(t *testing.T) {
	app := newApp(t, nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreatePostRequiresActor(t *testing.T) {
	app := newApp(t, nil)
	status, env := app.do(t, http.MethodPost, "/api/v1/posts", "", models.CreatePostRequest{Content: "hi"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthenticated", env.Error.Code)
}

func TestCreatePostValidatesBody(t *testing.T) {
	app := newApp(t, nil)
	status, env := app.do(t, http.MethodPost, "/api/v1/posts", "alice", models.CreatePostRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_argument", env.Error.Code)
	assert.Contains(t, env.Error.Message, "content is required")
}

func TestInvalidTokenIsRejected(t *testing.T) {
	app := newApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLikeNotifiesAuthorAndMountMarksRead(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "hello world", false)
	assert.Equal(t, "alice", post.Author.Username)

	status, env := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[stateBody](t, env.Data)
	assert.True(t, st.Liked)
	assert.EqualValues(t, 1, st.LikeCount)

	status, env = app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	status, env = app.do(t, http.MethodGet, "/api/v1/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[listBody](t, env.Data)
	require.Len(t, list.Groups, 1)
	assert.Equal(t, "bob liked your post", list.Groups[0].Summary)
	assert.True(t, list.Groups[0].Unread, "mount shows what was unread when loaded")
	assert.Equal(t, 1, list.UnreadCount)
	assert.Empty(t, list.Groups[0].Notifications[0].ActorID)

	status, env = app.do(t, http.MethodGet, "/api/v1/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	list = decode[listBody](t, env.Data)
	require.Len(t, list.Groups, 1)
	assert.False(t, list.Groups[0].Unread)
	assert.Zero(t, list.UnreadCount)

	_, env = app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil)
	assert.JSONEq(t, `{"count":0}`, string(env.Data))

	// Unliking removes the like but keeps the notification.
	status, env = app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	st = decode[stateBody](t, env.Data)
	assert.False(t, st.Liked)
	assert.Zero(t, st.LikeCount)
}

func TestLikesFromSeveralUsersAreGrouped(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "group me", false)

	for _, user := range []string{"bob", "carol"} {
		status, _ := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", user, nil)
		require.Equal(t, http.StatusOK, status)
	}

	status, env := app.do(t, http.MethodGet, "/api/v1/notifications?type=like_post&unread=true", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[listBody](t, env.Data)
	require.Len(t, list.Groups, 1)
	assert.Equal(t, 2, list.Groups[0].Count)
	assert.Equal(t, "carol and 1 other liked your post", list.Groups[0].Summary)
}

func TestInteractionsForAnonymousViewer(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "count me", false)
	app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)

	status, env := app.do(t, http.MethodGet, "/api/v1/posts/"+post.ID+"/interactions", "", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[stateBody](t, env.Data)
	assert.False(t, st.Liked)
	assert.EqualValues(t, 1, st.LikeCount)

	status, _ = app.do(t, http.MethodGet, "/api/v1/posts/missing/interactions", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCommentSubscribesCommenter(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "talk to me", false)

	status, env := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", "bob", models.CreateCommentRequest{Content: "hi @carol"})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, string(env.Data), `"username":"bob"`)

	status, env = app.do(t, http.MethodGet, "/api/v1/posts/"+post.ID+"/interactions", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[stateBody](t, env.Data)
	assert.True(t, st.Subscribed)
	assert.EqualValues(t, 1, st.CommentCount)

	status, env = app.do(t, http.MethodGet, "/api/v1/posts/"+post.ID+"/comments", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"content":"hi @carol"`)

	_, env = app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "carol", nil)
	assert.JSONEq(t, `{"count":1}`, string(env.Data), "mention")
	_, env = app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil)
	assert.JSONEq(t, `{"count":1}`, string(env.Data), "comment on own post")

	// Toggling the subscription off.
	status, env = app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/subscription/toggle", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[stateBody](t, env.Data).Subscribed)
}

func TestAnonymousPostHidesAuthor(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "secret", true)
	assert.Equal(t, "alice", post.AuthorID, "the author sees their own id")

	status, env := app.do(t, http.MethodGet, "/api/v1/posts/"+post.ID, "bob", nil)
	require.Equal(t, http.StatusOK, status)
	seen := decode[postBody](t, env.Data)
	assert.Empty(t, seen.AuthorID)
	assert.Nil(t, seen.Author)

	status, env = app.do(t, http.MethodGet, "/api/v1/posts?author_id=alice", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]postBody](t, env.Data))
}

func TestDeletePostAuthorOnly(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "ephemeral", false)

	status, env := app.do(t, http.MethodDelete, "/api/v1/posts/"+post.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error.Code)

	status, _ = app.do(t, http.MethodDelete, "/api/v1/posts/"+post.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = app.do(t, http.MethodGet, "/api/v1/posts/"+post.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdatePost(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "draft", false)

	status, env := app.do(t, http.MethodPut, "/api/v1/posts/"+post.ID, "alice", models.UpdatePostRequest{Content: "final"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"content":"final"`)
}

func TestMarkReadOnlyTouchesOwnNotifications(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "mark me", false)
	app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)

	notes, err := app.store.ListNotifications(context.Background(), repositories.NotificationQuery{RecipientID: "alice"})
	require.NoError(t, err)
	require.Len(t, notes, 1)

	status, env := app.do(t, http.MethodPut, "/api/v1/notifications/read", "bob", models.MarkReadRequest{IDs: []string{notes[0].ID}})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":0}`, string(env.Data))

	status, env = app.do(t, http.MethodPut, "/api/v1/notifications/read", "alice", models.MarkReadRequest{IDs: []string{notes[0].ID}})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	status, _ = app.do(t, http.MethodPut, "/api/v1/notifications/read", "alice", models.MarkReadRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGroupedNotificationsHasNoSideEffect(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "bucket me", false)
	app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)

	status, env := app.do(t, http.MethodGet, "/api/v1/notifications/grouped", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	body := decode[struct {
		Notifications map[string][]groupBody `json:"notifications"`
		UnreadCount   int                    `json:"unread_count"`
	}](t, env.Data)
	assert.Len(t, body.Notifications["today"], 1)
	assert.Empty(t, body.Notifications["older"])
	assert.Equal(t, 1, body.UnreadCount)

	_, env = app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil)
	assert.JSONEq(t, `{"count":1}`, string(env.Data))
}

func TestUnknownNotificationType(t *testing.T) {
	app := newApp(t, nil)
	status, env := app.do(t, http.MethodGet, "/api/v1/notifications?type=poke", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error.Message, "poke")
}

func TestFollowToggle(t *testing.T) {
	app := newApp(t, nil)

	status, env := app.do(t, http.MethodPost, "/api/v1/users/alice/follow/toggle", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"following":true,"follower_count":1}`, string(env.Data))

	status, env = app.do(t, http.MethodGet, "/api/v1/users/alice", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"follower_count":1`)

	status, _ = app.do(t, http.MethodPost, "/api/v1/users/bob/follow/toggle", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	_, env = app.do(t, http.MethodGet, "/api/v1/notifications", "alice", nil)
	list := decode[listBody](t, env.Data)
	require.Len(t, list.Groups, 1)
	assert.Equal(t, "bob started following you", list.Groups[0].Summary)
}

func TestCommentLikeToggle(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "comment target", false)
	_, env := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", "bob", models.CreateCommentRequest{Content: "first"})
	comment := decode[struct {
		ID string `json:"id"`
	}](t, env.Data)

	status, env := app.do(t, http.MethodPost, "/api/v1/comments/"+comment.ID+"/likes/toggle", "carol", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"liked":true,"like_count":1}`, string(env.Data))

	status, _ = app.do(t, http.MethodPost, "/api/v1/comments/missing/likes/toggle", "carol", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestToggleRateLimit(t *testing.T) {
	app := newApp(t, middleware.NewActorRateLimiter(rate.Every(time.Hour), 1))
	post := app.createPost(t, "alice", "spam me", false)

	status, _ := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
	status, env := app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", env.Error.Code)
}

func TestProfiles(t *testing.T) {
	app := newApp(t, nil)
	status, env := app.do(t, http.MethodPost, "/api/v1/profile", "dave", models.CreateProfileRequest{Username: "dave"})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, string(env.Data), `"username":"dave"`)

	status, _ = app.do(t, http.MethodPost, "/api/v1/profile", "erin", models.CreateProfileRequest{Username: "dave"})
	assert.Equal(t, http.StatusConflict, status)

	status, env = app.do(t, http.MethodGet, "/api/v1/profile", "dave", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"follower_count":0`)
}

type liveMsg struct {
	Type   string      `json:"type"`
	State  *stateBody  `json:"state"`
	Groups []groupBody `json:"groups"`
	Count  *int64      `json:"count"`
	Error  *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func dial(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	if token != "" {
		url += "?access_token=" + token
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, cond func(liveMsg) bool) liveMsg {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg liveMsg
		require.NoError(t, ws.ReadJSON(&msg))
		if cond(msg) {
			return msg
		}
	}
}

func TestPostSocketStreamsState(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "live post", false)
	srv := httptest.NewServer(app.e)
	t.Cleanup(srv.Close)

	ws := dial(t, srv, "/api/v1/ws/posts/"+post.ID, app.token(t, "bob"))
	first := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "state" })
	assert.False(t, first.State.Liked)

	require.NoError(t, ws.WriteJSON(map[string]string{"action": "toggle_like"}))
	liked := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "state" && m.State.Liked && m.State.LikeCount == 1 })
	assert.False(t, liked.State.Deleted)

	// A like by someone else only moves the count.
	app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "carol", nil)
	counted := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "state" && m.State.LikeCount == 2 })
	assert.True(t, counted.State.Liked)

	require.NoError(t, ws.WriteJSON(map[string]string{"action": "explode"}))
	failed := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "error" })
	assert.Equal(t, "invalid_argument", failed.Error.Code)
}

func TestAnonymousPostSocketCannotToggle(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "look only", false)
	srv := httptest.NewServer(app.e)
	t.Cleanup(srv.Close)

	ws := dial(t, srv, "/api/v1/ws/posts/"+post.ID, "")
	readUntil(t, ws, func(m liveMsg) bool { return m.Type == "state" })

	require.NoError(t, ws.WriteJSON(map[string]string{"action": "toggle_like"}))
	failed := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "error" })
	assert.Equal(t, "unauthenticated", failed.Error.Code)
}

func TestNotificationSocketStreamsGroupsAndCount(t *testing.T) {
	app := newApp(t, nil)
	post := app.createPost(t, "alice", "notify me live", false)
	srv := httptest.NewServer(app.e)
	t.Cleanup(srv.Close)

	ws := dial(t, srv, "/api/v1/ws/notifications", app.token(t, "alice"))
	readUntil(t, ws, func(m liveMsg) bool { return m.Type == "notifications" })
	initial := readUntil(t, ws, func(m liveMsg) bool { return m.Type == "unread_count" })
	assert.EqualValues(t, 0, *initial.Count)

	app.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/likes/toggle", "bob", nil)

	// The list and the count are pushed independently, in either order.
	var pushed *liveMsg
	counted := false
	readUntil(t, ws, func(m liveMsg) bool {
		switch {
		case m.Type == "notifications" && len(m.Groups) == 1:
			pushed = &m
		case m.Type == "unread_count" && m.Count != nil && *m.Count == 1:
			counted = true
		}
		return pushed != nil && counted
	})
	assert.Equal(t, "bob liked your post", pushed.Groups[0].Summary)
	assert.True(t, pushed.Groups[0].Unread)
}

func TestNotificationSocketRequiresActor(t *testing.T) {
	app := newApp(t, nil)
	srv := httptest.NewServer(app.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/notifications"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
