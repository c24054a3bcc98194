package repositories

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func notificationScope(q NotificationQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.RecipientID != "" {
			db = db.Where("recipient_id = ?", q.RecipientID)
		}
		if q.PostID != "" {
			db = db.Where("post_id = ?", q.PostID)
		}
		if q.UnreadOnly {
			db = db.Where("is_read = ?", false)
		}
		if len(q.Types) > 0 {
			db = db.Where("type IN ?", q.Types)
		}
		if len(q.IDs) > 0 {
			db = db.Where("id IN ?", q.IDs)
		}
		return db
	}
}

// InsertNotification creates a notification row
func (s *PostgresStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	return translate(s.db.WithContext(ctx).Create(n).Error, "notification", n.ID)
}

// ListNotifications retrieves notifications newest first
func (s *PostgresStore) ListNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.db.WithContext(ctx).Scopes(notificationScope(q)).Order("created_at DESC").Order("id DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, translate(err, "notification", "")
	}
	return notifications, nil
}

// CountNotifications counts matching notifications
func (s *PostgresStore) CountNotifications(ctx context.Context, q NotificationQuery) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).Scopes(notificationScope(q)).Count(&count).Error
	return count, translate(err, "notification", "")
}

// MarkRead flips matching unread notifications to read as one conditional
// update and returns the changed rows
func (s *PostgresStore) MarkRead(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	q.UnreadOnly = true
	var changed []models.Notification
	err := s.db.WithContext(ctx).Model(&changed).Clauses(clause.Returning{}).
		Scopes(notificationScope(q)).
		Update("is_read", true).Error
	if err != nil {
		return nil, translate(err, "notification", "")
	}
	return changed, nil
}
