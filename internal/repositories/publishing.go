package repositories

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/models"
)

// publishingStore reports every successful write on the change feed. It is
// used for backends that have no native row-level change notifications.
type publishingStore struct {
	Store
	pub changefeed.Publisher
}

// WithPublishing wraps s so that each committed write is published on pub.
func WithPublishing(s Store, pub changefeed.Publisher) Store {
	return &publishingStore{Store: s, pub: pub}
}

func (s *publishingStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return err
	}
	s.pub.Publish(changefeed.OpInsert, *user)
	return nil
}

func (s *publishingStore) CreatePost(ctx context.Context, post *models.Post) error {
	if err := s.Store.CreatePost(ctx, post); err != nil {
		return err
	}
	s.pub.Publish(changefeed.OpInsert, *post)
	return nil
}

func (s *publishingStore) UpdatePostContent(ctx context.Context, id, content string) (*models.Post, error) {
	post, err := s.Store.UpdatePostContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(changefeed.OpUpdate, *post)
	return post, nil
}

// DeletePost publishes a delete for every cascaded notification, then one
// for the post. Subscribers of the post's edges and comments rely on the
// post event.
func (s *publishingStore) DeletePost(ctx context.Context, id string) (*models.Post, []models.Notification, error) {
	post, removed, err := s.Store.DeletePost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for _, n := range removed {
		s.pub.Publish(changefeed.OpDelete, n)
	}
	s.pub.Publish(changefeed.OpDelete, *post)
	return post, removed, nil
}

func (s *publishingStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := s.Store.CreateComment(ctx, comment); err != nil {
		return err
	}
	s.pub.Publish(changefeed.OpInsert, *comment)
	return nil
}

func (s *publishingStore) InsertEdge(ctx context.Context, edge *models.Edge) error {
	if err := s.Store.InsertEdge(ctx, edge); err != nil {
		return err
	}
	s.pub.Publish(changefeed.OpInsert, *edge)
	return nil
}

func (s *publishingStore) DeleteEdge(ctx context.Context, edge models.Edge) (int64, error) {
	n, err := s.Store.DeleteEdge(ctx, edge)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.pub.Publish(changefeed.OpDelete, edge)
	}
	return n, nil
}

func (s *publishingStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if err := s.Store.InsertNotification(ctx, n); err != nil {
		return err
	}
	s.pub.Publish(changefeed.OpInsert, *n)
	return nil
}

func (s *publishingStore) MarkRead(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	changed, err := s.Store.MarkRead(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, n := range changed {
		s.pub.Publish(changefeed.OpUpdate, n)
	}
	return changed, nil
}
