package models

import "time"

// Comment represents a comment on a post, or a reply when ParentID is set.
type Comment struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey" bson:"_id"`
	PostID    string    `json:"post_id" gorm:"type:varchar(64);not null;index" bson:"post_id"`
	ParentID  *string   `json:"parent_id,omitempty" gorm:"type:varchar(64);index" bson:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty" gorm:"type:varchar(128);not null;index" bson:"author_id"`
	Content   string    `json:"content" gorm:"type:varchar(2000);not null" bson:"content"`
	Anonymous bool      `json:"is_anonymous" gorm:"not null;default:false" bson:"is_anonymous"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index" bson:"created_at"`
}

func (c Comment) Table() Relation { return RelationComments }

func (c Comment) Keys() (string, string) { return c.PostID, c.AuthorID }

// ForViewer hides the author of an anonymous comment from other viewers.
func (c Comment) ForViewer(viewerID string) Comment {
	if c.Anonymous && c.AuthorID != viewerID {
		c.AuthorID = ""
	}
	return c
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Content   string  `json:"content" validate:"required,min=1,max=2000"`
	ParentID  *string `json:"parent_id,omitempty" validate:"omitempty,min=1"`
	Anonymous bool    `json:"is_anonymous"`
}
