// Package services orchestrates post and comment writes with their side
// effects: anonymity rules, auto-subscription and notification emission.
package services

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"go.uber.org/zap"
)

// DefaultPageSize is used when a listing asks for no limit.
const DefaultPageSize = 20

// PostService handles post writes and reads.
type PostService struct {
	store   repositories.Store
	emitter *notifications.Emitter
	logger  *zap.Logger
}

// NewPostService creates a PostService.
func NewPostService(store repositories.Store, emitter *notifications.Emitter, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{store: store, emitter: emitter, logger: logger.With(zap.String("component", "post_service"))}
}

// Create publishes a post for actor and notifies mentioned users.
func (s *PostService) Create(ctx context.Context, actor string, req models.CreatePostRequest) (*models.Post, error) {
	if actor == "" {
		return nil, apperr.ErrUnauthenticated
	}
	post := &models.Post{AuthorID: actor, Content: req.Content, Anonymous: req.Anonymous}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	s.logger.Info("post created", zap.String("post_id", post.ID), zap.Bool("anonymous", post.Anonymous))

	if s.emitter != nil {
		s.emitter.PostCreated(ctx, *post)
	}
	return post, nil
}

// Get returns a post as viewer may see it.
func (s *PostService) Get(ctx context.Context, viewer, id string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	out := post.ForViewer(viewer)
	return &out, nil
}

// List returns a page of posts, newest first, as viewer may see them.
func (s *PostService) List(ctx context.Context, viewer string, q repositories.PostQuery) ([]models.Post, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	posts, err := s.store.ListPosts(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if q.AuthorID != "" && p.Anonymous && p.AuthorID != viewer {
			continue
		}
		out = append(out, p.ForViewer(viewer))
	}
	return out, nil
}

// UpdateContent edits the content of actor's own post.
func (s *PostService) UpdateContent(ctx context.Context, actor, id, content string) (*models.Post, error) {
	if err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.UpdatePostContent(ctx, id, content)
}

// Delete removes actor's own post with everything hanging off it.
func (s *PostService) Delete(ctx context.Context, actor, id string) error {
	if err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	_, removed, err := s.store.DeletePost(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("post deleted", zap.String("post_id", id), zap.Int("notifications_removed", len(removed)))
	return nil
}

func (s *PostService) authorize(ctx context.Context, actor, id string) error {
	if actor == "" {
		return apperr.ErrUnauthenticated
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != actor {
		return apperr.Forbidden("only the author can change a post")
	}
	return nil
}
