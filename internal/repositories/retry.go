package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// RetryConfig bounds read retries.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryConfig is three attempts with a short jittered backoff.
var DefaultRetryConfig = RetryConfig{Attempts: 3, Delay: 50 * time.Millisecond, MaxDelay: time.Second}

// retryingStore retries reads that fail with apperr.ErrTransient. Writes are
// passed through untouched so a failure is never turned into a duplicate
// side effect.
type retryingStore struct {
	Store
	cfg    RetryConfig
	logger *zap.Logger
}

// WithReadRetry wraps s with bounded retries on its read methods.
func WithReadRetry(s Store, cfg RetryConfig, logger *zap.Logger) Store {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	return &retryingStore{Store: s, cfg: cfg, logger: logger}
}

func read[T any](ctx context.Context, s *retryingStore, op string, fn func() (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	jitter := s.cfg.Delay
	if jitter <= 0 {
		jitter = time.Millisecond
	}
	err := retry.Do(
		func() error {
			v, err := fn()
			if err != nil {
				lastErr = err
				return err
			}
			out = v
			return nil
		},
		retry.Attempts(s.cfg.Attempts),
		retry.Delay(s.cfg.Delay),
		retry.MaxDelay(s.cfg.MaxDelay),
		retry.MaxJitter(jitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying store read", zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, apperr.ErrTransient)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return out, lastErr
		}
		return out, err
	}
	return out, nil
}

func (s *retryingStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return read(ctx, s, "get_user", func() (*models.User, error) { return s.Store.GetUser(ctx, id) })
}

func (s *retryingStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	return read(ctx, s, "get_users", func() ([]models.User, error) { return s.Store.GetUsers(ctx, ids) })
}

func (s *retryingStore) GetUsersByUsername(ctx context.Context, usernames []string) ([]models.User, error) {
	return read(ctx, s, "get_users_by_username", func() ([]models.User, error) {
		return s.Store.GetUsersByUsername(ctx, usernames)
	})
}

func (s *retryingStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return read(ctx, s, "get_post", func() (*models.Post, error) { return s.Store.GetPost(ctx, id) })
}

func (s *retryingStore) ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error) {
	return read(ctx, s, "list_posts", func() ([]models.Post, error) { return s.Store.ListPosts(ctx, q) })
}

func (s *retryingStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	return read(ctx, s, "get_comment", func() (*models.Comment, error) { return s.Store.GetComment(ctx, id) })
}

func (s *retryingStore) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	return read(ctx, s, "list_comments", func() ([]models.Comment, error) { return s.Store.ListComments(ctx, postID) })
}

func (s *retryingStore) CountComments(ctx context.Context, postID string) (int64, error) {
	return read(ctx, s, "count_comments", func() (int64, error) { return s.Store.CountComments(ctx, postID) })
}

func (s *retryingStore) HasEdge(ctx context.Context, edge models.Edge) (bool, error) {
	return read(ctx, s, "has_edge", func() (bool, error) { return s.Store.HasEdge(ctx, edge) })
}

func (s *retryingStore) CountEdges(ctx context.Context, rel models.Relation, subjectID string) (int64, error) {
	return read(ctx, s, "count_edges", func() (int64, error) { return s.Store.CountEdges(ctx, rel, subjectID) })
}

func (s *retryingStore) ListEdgeUsers(ctx context.Context, rel models.Relation, subjectID string) ([]string, error) {
	return read(ctx, s, "list_edge_users", func() ([]string, error) { return s.Store.ListEdgeUsers(ctx, rel, subjectID) })
}

func (s *retryingStore) ListNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	return read(ctx, s, "list_notifications", func() ([]models.Notification, error) {
		return s.Store.ListNotifications(ctx, q)
	})
}

func (s *retryingStore) CountNotifications(ctx context.Context, q NotificationQuery) (int64, error) {
	return read(ctx, s, "count_notifications", func() (int64, error) { return s.Store.CountNotifications(ctx, q) })
}
