// Package dataloader batches the profile lookups of one request.
package dataloader

import (
	"context"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/graph-gophers/dataloader"
	"github.com/labstack/echo/v4"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders holds the request-scoped loaders.
type Loaders struct {
	Profiles *dataloader.Loader
}

// NewLoaders creates fresh loaders over store.
func NewLoaders(store repositories.UserRepository) *Loaders {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()
		users, err := store.GetUsers(ctx, ids)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[string]models.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}
		for i, id := range ids {
			if u, ok := byID[id]; ok {
				compact := u.ToCompact()
				results[i] = &dataloader.Result{Data: &compact}
			} else {
				results[i] = &dataloader.Result{Data: (*models.UserCompact)(nil)}
			}
		}
		return results
	}

	return &Loaders{
		Profiles: dataloader.NewBatchedLoader(batchFn,
			dataloader.WithWait(time.Millisecond),
			dataloader.WithClearCacheOnBatch(),
		),
	}
}

// Middleware puts fresh loaders into every request's context.
func Middleware(store repositories.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := context.WithValue(req.Context(), key, NewLoaders(store))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// For extracts the loaders from ctx, or nil if there are none.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// Profiles resolves the compact profiles of ids in one batch. Unknown ids
// are left out of the result.
func Profiles(ctx context.Context, store repositories.UserRepository, ids []string) (map[string]models.UserCompact, error) {
	out := make(map[string]models.UserCompact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	loaders := For(ctx)
	if loaders == nil {
		loaders = NewLoaders(store)
	}
	values, errs := loaders.Profiles.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()
	for i, v := range values {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if u, ok := v.(*models.UserCompact); ok && u != nil {
			out[u.ID] = *u
		}
	}
	return out, nil
}
