package models

import "time"

// Post is a micro-post. LikeCount and CommentCount are derived by the store
// on read and are never persisted.
type Post struct {
	ID           string    `json:"id" gorm:"type:varchar(64);primaryKey" bson:"_id"`
	AuthorID     string    `json:"author_id,omitempty" gorm:"type:varchar(128);not null;index" bson:"author_id"`
	Content      string    `json:"content" gorm:"type:text;not null" bson:"content"`
	Anonymous    bool      `json:"is_anonymous" gorm:"not null;default:false" bson:"is_anonymous"`
	LikeCount    int64     `json:"like_count" gorm:"->;-:migration" bson:"-"`
	CommentCount int64     `json:"comment_count" gorm:"->;-:migration" bson:"-"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;index" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

func (p Post) Table() Relation { return RelationPosts }

func (p Post) Keys() (string, string) { return p.ID, p.AuthorID }

// ForViewer hides the author of an anonymous post from everyone but the author.
func (p Post) ForViewer(viewerID string) Post {
	if p.Anonymous && p.AuthorID != viewerID {
		p.AuthorID = ""
	}
	return p
}

// CreatePostRequest defines the request body for creating a new post
type CreatePostRequest struct {
	Content   string `json:"content" validate:"required,min=1,max=280"`
	Anonymous bool   `json:"is_anonymous"`
}

// UpdatePostRequest defines the request body for editing a post's content
type UpdatePostRequest struct {
	Content string `json:"content" validate:"required,min=1,max=280"`
}
