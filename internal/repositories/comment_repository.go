package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateComment checks the post (and parent, for replies) and creates the comment
func (s *PostgresStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var postCount int64
		if err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).Count(&postCount).Error; err != nil {
			return err
		}
		if postCount == 0 {
			return apperr.NotFound("post", comment.PostID)
		}

		if comment.ParentID != nil {
			var parentCount int64
			err := tx.Model(&models.Comment{}).
				Where("id = ? AND post_id = ?", *comment.ParentID, comment.PostID).
				Count(&parentCount).Error
			if err != nil {
				return err
			}
			if parentCount == 0 {
				return apperr.NotFound("comment", *comment.ParentID)
			}
		}

		comment.ID = uuid.NewString()
		comment.CreatedAt = s.now().UTC()
		return tx.Create(comment).Error
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return translate(err, "comment", comment.ID)
	}
	return nil
}

// GetComment retrieves a comment by ID
func (s *PostgresStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, translate(err, "comment", id)
	}
	return &comment, nil
}

// ListComments retrieves all comments of a post, oldest first
func (s *PostgresStore) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at ASC").Order("id ASC").Find(&comments).Error
	if err != nil {
		return nil, translate(err, "comment", "")
	}
	return comments, nil
}

// CountComments counts the comments of a post
func (s *PostgresStore) CountComments(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&count).Error
	return count, translate(err, "comment", "")
}
