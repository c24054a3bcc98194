package services

import (
	"context"
	"errors"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/notifications"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"go.uber.org/zap"
)

// CommentService handles comment writes and reads.
type CommentService struct {
	store   repositories.Store
	emitter *notifications.Emitter
	logger  *zap.Logger
}

// NewCommentService creates a CommentService.
func NewCommentService(store repositories.Store, emitter *notifications.Emitter, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{store: store, emitter: emitter, logger: logger.With(zap.String("component", "comment_service"))}
}

// Create adds a comment by actor to a post. Only the author of an anonymous
// post may comment anonymously on it. Commenters other than the post author
// are subscribed to the post.
func (s *CommentService) Create(ctx context.Context, actor, postID string, req models.CreateCommentRequest) (*models.Comment, error) {
	if actor == "" {
		return nil, apperr.ErrUnauthenticated
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if req.Anonymous && !(post.Anonymous && post.AuthorID == actor) {
		return nil, apperr.Invalid("only the author of an anonymous post can comment anonymously")
	}

	comment := &models.Comment{
		PostID:    post.ID,
		ParentID:  req.ParentID,
		AuthorID:  actor,
		Content:   req.Content,
		Anonymous: req.Anonymous,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	if actor != post.AuthorID {
		err := s.store.InsertEdge(ctx, &models.Edge{Relation: models.RelationSubscriptions, SubjectID: post.ID, UserID: actor})
		if err != nil && !errors.Is(err, apperr.ErrConflict) {
			s.logger.Warn("failed to subscribe commenter",
				zap.String("post_id", post.ID),
				zap.String("actor", actor),
				zap.Error(err),
			)
		}
	}

	if s.emitter != nil {
		s.emitter.CommentCreated(ctx, *post, *comment)
	}
	return comment, nil
}

// List returns a post's comments oldest first, as viewer may see them.
func (s *CommentService) List(ctx context.Context, viewer, postID string) ([]models.Comment, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i] = comments[i].ForViewer(viewer)
	}
	return comments, nil
}
