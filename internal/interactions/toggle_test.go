package interactions

import (
	"context"
	"testing"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/repositories/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingStore reports every edge as absent, so the insert runs into the
// uniqueness constraint as it would after losing a race.
type racingStore struct {
	repositories.Store
}

func (racingStore) HasEdge(context.Context, models.Edge) (bool, error) { return false, nil }

func seedPost(t *testing.T, store repositories.Store, author string) *models.Post {
	t.Helper()
	post := &models.Post{AuthorID: author, Content: "post by " + author}
	require.NoError(t, store.CreatePost(context.Background(), post))
	return post
}

func TestToggle_LikeOnOff(t *testing.T) {
	store := inmemory.New()
	post := seedPost(t, store, "u2")
	toggler := NewToggler(store, nil)
	ctx := context.Background()

	var created []models.Edge
	toggler.OnCreate(models.RelationLikes, func(_ context.Context, e models.Edge) { created = append(created, e) })

	on, err := toggler.Toggle(ctx, "u1", models.RelationLikes, post.ID)
	require.NoError(t, err)
	assert.True(t, on)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.LikeCount)

	on, err = toggler.Toggle(ctx, "u1", models.RelationLikes, post.ID)
	require.NoError(t, err)
	assert.False(t, on)

	got, err = store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LikeCount)

	require.Len(t, created, 1)
	assert.Equal(t, "u1", created[0].UserID)
}

func TestToggle_Unauthenticated(t *testing.T) {
	store := inmemory.New()
	post := seedPost(t, store, "u2")

	_, err := NewToggler(store, nil).Toggle(context.Background(), "", models.RelationLikes, post.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestToggle_MissingSubject(t *testing.T) {
	toggler := NewToggler(inmemory.New(), nil)
	ctx := context.Background()

	for _, rel := range models.EdgeRelations {
		_, err := toggler.Toggle(ctx, "u1", rel, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound, rel)
	}
}

func TestToggle_AuthorCannotSubscribeToOwnPost(t *testing.T) {
	store := inmemory.New()
	post := seedPost(t, store, "u2")

	_, err := NewToggler(store, nil).Toggle(context.Background(), "u2", models.RelationSubscriptions, post.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestToggle_CannotFollowSelf(t *testing.T) {
	store := inmemory.New()
	require.NoError(t, store.CreateUser(context.Background(), &models.User{ID: "u1", Username: "alice"}))

	_, err := NewToggler(store, nil).Toggle(context.Background(), "u1", models.RelationFollows, "u1")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestToggle_ConflictAbsorbed(t *testing.T) {
	inner := inmemory.New()
	post := seedPost(t, inner, "u2")
	ctx := context.Background()
	require.NoError(t, inner.InsertEdge(ctx, &models.Edge{Relation: models.RelationLikes, SubjectID: post.ID, UserID: "u1"}))

	toggler := NewToggler(racingStore{inner}, nil)
	fired := false
	toggler.OnCreate(models.RelationLikes, func(context.Context, models.Edge) { fired = true })

	on, err := toggler.Toggle(ctx, "u1", models.RelationLikes, post.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.False(t, fired)

	n, err := inner.CountEdges(ctx, models.RelationLikes, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestToggle_FollowAndCommentLike(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u2", Username: "bob"}))
	post := seedPost(t, store, "u2")
	comment := &models.Comment{PostID: post.ID, AuthorID: "u2", Content: "hi"}
	require.NoError(t, store.CreateComment(ctx, comment))

	toggler := NewToggler(store, nil)
	on, err := toggler.Toggle(ctx, "u1", models.RelationFollows, "u2")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = toggler.Toggle(ctx, "u1", models.RelationCommentLikes, comment.ID)
	require.NoError(t, err)
	assert.True(t, on)

	followers, err := store.ListEdgeUsers(ctx, models.RelationFollows, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, followers)
}
