package dataloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/repositories/inmemory"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingUsers struct {
	repositories.UserRepository
	calls atomic.Int32
	err   error
}

func (c *countingUsers) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.UserRepository.GetUsers(ctx, ids)
}

func seedUsers(t *testing.T) *inmemory.Store {
	t.Helper()
	store := inmemory.New()
	for _, u := range []models.User{{ID: "u1", Username: "alice"}, {ID: "u2", Username: "bob"}} {
		u := u
		require.NoError(t, store.CreateUser(context.Background(), &u))
	}
	return store
}

func TestProfiles_OneBatch(t *testing.T) {
	users := &countingUsers{UserRepository: seedUsers(t)}

	got, err := Profiles(context.Background(), users, []string{"u1", "u2", "u9", "u1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "alice", got["u1"].Username)
	assert.Equal(t, "bob", got["u2"].Username)
	assert.EqualValues(t, 1, users.calls.Load())
}

func TestProfiles_Error(t *testing.T) {
	users := &countingUsers{UserRepository: seedUsers(t), err: errors.New("boom")}

	_, err := Profiles(context.Background(), users, []string{"u1"})
	assert.Error(t, err)
}

func TestMiddleware_InjectsLoaders(t *testing.T) {
	users := &countingUsers{UserRepository: seedUsers(t)}
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		require.NotNil(t, For(c.Request().Context()))
		got, err := Profiles(c.Request().Context(), users, []string{"u2"})
		require.NoError(t, err)
		return c.String(http.StatusOK, got["u2"].Username)
	}, Middleware(users))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "bob", rec.Body.String())
}
