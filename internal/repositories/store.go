package repositories

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/models"
)

// UserRepository defines the profile operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	GetUsersByUsername(ctx context.Context, usernames []string) ([]models.User, error)
}

// PostQuery selects posts for a feed, newest first.
type PostQuery struct {
	AuthorID string
	Limit    int
	Offset   int
}

// PostRepository defines post operations. Like and comment counts on
// returned posts are derived from the likes and comments relations.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error)
	UpdatePostContent(ctx context.Context, id, content string) (*models.Post, error)
	// DeletePost removes the post together with its likes, subscriptions,
	// comments, the likes on those comments and every notification rooted
	// at the post. It returns the removed post and notifications.
	DeletePost(ctx context.Context, id string) (*models.Post, []models.Notification, error)
}

// CommentRepository defines comment operations
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	CountComments(ctx context.Context, postID string) (int64, error)
}

// EdgeRepository defines toggle relation operations. InsertEdge fails with
// apperr.ErrConflict when the (relation, subject, user) row already exists.
type EdgeRepository interface {
	InsertEdge(ctx context.Context, edge *models.Edge) error
	DeleteEdge(ctx context.Context, edge models.Edge) (int64, error)
	HasEdge(ctx context.Context, edge models.Edge) (bool, error)
	CountEdges(ctx context.Context, rel models.Relation, subjectID string) (int64, error)
	ListEdgeUsers(ctx context.Context, rel models.Relation, subjectID string) ([]string, error)
}

// NotificationQuery filters a recipient's notifications. Zero fields match
// everything.
type NotificationQuery struct {
	RecipientID string
	PostID      string
	Types       []models.NotificationType
	UnreadOnly  bool
	IDs         []string
	Limit       int
}

// NotificationRepository defines notification operations. MarkRead only
// ever sets is_read to true and returns the rows it changed.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error)
	CountNotifications(ctx context.Context, q NotificationQuery) (int64, error)
	MarkRead(ctx context.Context, q NotificationQuery) ([]models.Notification, error)
}

// Store is the full data platform contract.
type Store interface {
	UserRepository
	PostRepository
	CommentRepository
	EdgeRepository
	NotificationRepository
}

// Match reports whether n passes q.
func (q NotificationQuery) Match(n models.Notification) bool {
	if q.RecipientID != "" && n.RecipientID != q.RecipientID {
		return false
	}
	if q.PostID != "" && (n.PostID == nil || *n.PostID != q.PostID) {
		return false
	}
	if q.UnreadOnly && n.IsRead {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, n.Type) {
		return false
	}
	if len(q.IDs) > 0 && !containsString(q.IDs, n.ID) {
		return false
	}
	return true
}

func containsType(types []models.NotificationType, t models.NotificationType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, want := range values {
		if want == v {
			return true
		}
	}
	return false
}
