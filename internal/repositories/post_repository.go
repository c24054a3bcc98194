package repositories

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const postColumns = "posts.*, " +
	"(SELECT COUNT(*) FROM likes WHERE likes.subject_id = posts.id) AS like_count, " +
	"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count"

// CreatePost creates a new post
func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) error {
	post.ID = uuid.NewString()
	post.CreatedAt = s.now().UTC()
	post.UpdatedAt = post.CreatedAt
	post.LikeCount, post.CommentCount = 0, 0
	return translate(s.db.WithContext(ctx).Create(post).Error, "post", post.ID)
}

// GetPost retrieves a post with its derived counts
func (s *PostgresStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Model(&models.Post{}).Select(postColumns).Where("posts.id = ?", id).Take(&post).Error
	if err != nil {
		return nil, translate(err, "post", id)
	}
	return &post, nil
}

// ListPosts retrieves posts newest first with pagination
func (s *PostgresStore) ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error) {
	var posts []models.Post
	query := s.db.WithContext(ctx).Model(&models.Post{}).Select(postColumns).
		Order("posts.created_at DESC").Order("posts.id DESC").Offset(q.Offset)
	if q.AuthorID != "" {
		query = query.Where("posts.author_id = ?", q.AuthorID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, translate(err, "post", "")
	}
	return posts, nil
}

// UpdatePostContent edits a post's content
func (s *PostgresStore) UpdatePostContent(ctx context.Context, id, content string) (*models.Post, error) {
	res := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return nil, translate(res.Error, "post", id)
	}
	if res.RowsAffected == 0 {
		return nil, translate(gorm.ErrRecordNotFound, "post", id)
	}
	return s.GetPost(ctx, id)
}

// DeletePost deletes a post and everything that hangs off it in one transaction
func (s *PostgresStore) DeletePost(ctx context.Context, id string) (*models.Post, []models.Notification, error) {
	var (
		post    models.Post
		removed []models.Notification
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			return err
		}

		commentIDs := tx.Model(&models.Comment{}).Select("id").Where("post_id = ?", id)
		if err := tx.Table(string(models.RelationCommentLikes)).Where("subject_id IN (?)", commentIDs).Delete(&edgeRecord{}).Error; err != nil {
			return err
		}
		for _, rel := range []models.Relation{models.RelationLikes, models.RelationSubscriptions} {
			if err := tx.Table(string(rel)).Where("subject_id = ?", id).Delete(&edgeRecord{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Clauses(clause.Returning{}).Where("post_id = ?", id).Delete(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Post{}).Error
	})
	if err != nil {
		return nil, nil, translate(err, "post", id)
	}
	return &post, removed, nil
}
