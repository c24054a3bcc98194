package repositories

import (
	"context"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
)

// CreateUser creates a new user profile
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = s.now().UTC()
	return translate(s.db.WithContext(ctx).Create(user).Error, "user", user.ID)
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user", id)
	}
	return &user, nil
}

// GetUsers retrieves the users that exist among ids
func (s *PostgresStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, translate(err, "user", "")
}

// GetUsersByUsername retrieves the users whose usernames appear in usernames
func (s *PostgresStore) GetUsersByUsername(ctx context.Context, usernames []string) ([]models.User, error) {
	var users []models.User
	if len(usernames) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error
	return users, translate(err, "user", "")
}
