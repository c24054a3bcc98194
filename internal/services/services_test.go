package services

import (
	"context"
	"testing"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/repositories/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T) (*PostService, *CommentService, *inmemory.Store) {
	t.Helper()
	store := inmemory.New()
	ctx := context.Background()
	for _, u := range []models.User{{ID: "u1", Username: "alice"}, {ID: "u2", Username: "bob"}, {ID: "u3", Username: "carol"}} {
		u := u
		require.NoError(t, store.CreateUser(ctx, &u))
	}
	emitter := notifications.NewEmitter(store, nil)
	return NewPostService(store, emitter, nil), NewCommentService(store, emitter, nil), store
}

func TestPostService_CreateNotifiesMentions(t *testing.T) {
	posts, _, store := newServices(t)
	ctx := context.Background()

	post, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "hello @alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)

	inbox, err := store.ListNotifications(ctx, repositories.NotificationQuery{RecipientID: "u1"})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationMention, inbox[0].Type)
	assert.Equal(t, "bob mentioned you", inbox[0].Content)

	_, err = posts.Create(ctx, "", models.CreatePostRequest{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestPostService_AnonymousAuthorHidden(t *testing.T) {
	posts, _, _ := newServices(t)
	ctx := context.Background()

	post, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "secret", Anonymous: true})
	require.NoError(t, err)

	seen, err := posts.Get(ctx, "u1", post.ID)
	require.NoError(t, err)
	assert.Empty(t, seen.AuthorID)

	own, err := posts.Get(ctx, "u2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", own.AuthorID)

	byAuthor, err := posts.List(ctx, "u1", repositories.PostQuery{AuthorID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, byAuthor)

	feed, err := posts.List(ctx, "u1", repositories.PostQuery{})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Empty(t, feed[0].AuthorID)
}

func TestPostService_OnlyAuthorChanges(t *testing.T) {
	posts, _, _ := newServices(t)
	ctx := context.Background()

	post, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "v1"})
	require.NoError(t, err)

	_, err = posts.UpdateContent(ctx, "u1", post.ID, "hijack")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, posts.Delete(ctx, "u1", post.ID), apperr.ErrForbidden)

	updated, err := posts.UpdateContent(ctx, "u2", post.ID, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)

	require.NoError(t, posts.Delete(ctx, "u2", post.ID))
	_, err = posts.Get(ctx, "u2", post.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCommentService_AnonymityRule(t *testing.T) {
	posts, comments, _ := newServices(t)
	ctx := context.Background()

	anon, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "anon", Anonymous: true})
	require.NoError(t, err)
	public, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "public"})
	require.NoError(t, err)

	_, err = comments.Create(ctx, "u1", anon.ID, models.CreateCommentRequest{Content: "me too", Anonymous: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = comments.Create(ctx, "u2", public.ID, models.CreateCommentRequest{Content: "mine", Anonymous: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	c, err := comments.Create(ctx, "u2", anon.ID, models.CreateCommentRequest{Content: "still me", Anonymous: true})
	require.NoError(t, err)
	assert.True(t, c.Anonymous)

	list, err := comments.List(ctx, "u1", anon.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].AuthorID)
}

func TestCommentService_AutoSubscribesCommenter(t *testing.T) {
	posts, comments, store := newServices(t)
	ctx := context.Background()

	post, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "topic"})
	require.NoError(t, err)

	_, err = comments.Create(ctx, "u1", post.ID, models.CreateCommentRequest{Content: "first"})
	require.NoError(t, err)
	_, err = comments.Create(ctx, "u1", post.ID, models.CreateCommentRequest{Content: "again"})
	require.NoError(t, err)
	_, err = comments.Create(ctx, "u2", post.ID, models.CreateCommentRequest{Content: "author reply"})
	require.NoError(t, err)

	subs, err := store.ListEdgeUsers(ctx, models.RelationSubscriptions, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, subs)

	_, err = comments.Create(ctx, "u3", post.ID, models.CreateCommentRequest{Content: "hi all"})
	require.NoError(t, err)

	alice, err := store.ListNotifications(ctx, repositories.NotificationQuery{RecipientID: "u1"})
	require.NoError(t, err)
	var fromCarol int
	for _, n := range alice {
		if n.ActorID == "u3" && n.Type == models.NotificationComment {
			fromCarol++
		}
	}
	assert.Equal(t, 1, fromCarol)
}

func TestCommentService_MissingPostOrParent(t *testing.T) {
	posts, comments, _ := newServices(t)
	ctx := context.Background()

	_, err := comments.Create(ctx, "u1", "missing", models.CreateCommentRequest{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	post, err := posts.Create(ctx, "u2", models.CreatePostRequest{Content: "topic"})
	require.NoError(t, err)
	parent := "nope"
	_, err = comments.Create(ctx, "u1", post.ID, models.CreateCommentRequest{Content: "x", ParentID: &parent})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
