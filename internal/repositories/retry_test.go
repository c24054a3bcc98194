package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockStore mocks the methods the tests call; the embedded Store is nil.
type mockStore struct {
	repositories.Store
	mock.Mock
}

func (m *mockStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *mockStore) InsertEdge(ctx context.Context, edge *models.Edge) error {
	return m.Called(ctx, edge).Error(0)
}

var fastRetry = repositories.RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestWithReadRetry_RetriesTransient(t *testing.T) {
	inner := &mockStore{}
	ctx := context.Background()
	inner.On("GetPost", ctx, "p1").Return(nil, apperr.Transient(errors.New("connection reset"))).Twice()
	inner.On("GetPost", ctx, "p1").Return(&models.Post{ID: "p1"}, nil).Once()

	store := repositories.WithReadRetry(inner, fastRetry, zap.NewNop())
	post, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", post.ID)
	inner.AssertNumberOfCalls(t, "GetPost", 3)
}

func TestWithReadRetry_GivesUpWithTransient(t *testing.T) {
	inner := &mockStore{}
	ctx := context.Background()
	inner.On("GetPost", ctx, "p1").Return(nil, apperr.Transient(errors.New("timeout")))

	store := repositories.WithReadRetry(inner, fastRetry, zap.NewNop())
	_, err := store.GetPost(ctx, "p1")
	assert.ErrorIs(t, err, apperr.ErrTransient)
	inner.AssertNumberOfCalls(t, "GetPost", 3)
}

func TestWithReadRetry_PermanentFailsFast(t *testing.T) {
	inner := &mockStore{}
	ctx := context.Background()
	inner.On("GetPost", ctx, "p1").Return(nil, apperr.NotFound("post", "p1"))

	store := repositories.WithReadRetry(inner, fastRetry, zap.NewNop())
	_, err := store.GetPost(ctx, "p1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	inner.AssertNumberOfCalls(t, "GetPost", 1)
}

func TestWithReadRetry_WritesAreNotRetried(t *testing.T) {
	inner := &mockStore{}
	ctx := context.Background()
	edge := &models.Edge{Relation: models.RelationLikes, SubjectID: "p1", UserID: "u1"}
	inner.On("InsertEdge", ctx, edge).Return(apperr.Transient(errors.New("broken pipe")))

	store := repositories.WithReadRetry(inner, fastRetry, zap.NewNop())
	err := store.InsertEdge(ctx, edge)
	assert.ErrorIs(t, err, apperr.ErrTransient)
	inner.AssertNumberOfCalls(t, "InsertEdge", 1)
}
