package models

import (
	"fmt"
	"time"
)

// NotificationType classifies what caused a notification.
type NotificationType string

const (
	NotificationLikePost    NotificationType = "like_post"
	NotificationLikeComment NotificationType = "like_comment"
	NotificationFollow      NotificationType = "follow"
	NotificationMention     NotificationType = "mention"
	NotificationComment     NotificationType = "comment"
	NotificationReply       NotificationType = "reply_comment"
)

// NotificationTypes lists every known type.
var NotificationTypes = []NotificationType{
	NotificationLikePost, NotificationLikeComment, NotificationFollow,
	NotificationMention, NotificationComment, NotificationReply,
}

// Valid reports whether t is a known type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification represents a user notification.
//
// ReferenceID points at the entity that caused it: the post for like_post,
// the comment for like_comment, the new comment for comment and
// reply_comment, the follower for follow and the source post or comment for
// mention. PostID is the post the notification ultimately hangs off and is
// what post deletion cascades on; it is nil for follows.
type Notification struct {
	ID          string           `json:"id" gorm:"type:varchar(64);primaryKey" bson:"_id"`
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(128);not null;index:idx_notifications_recipient_read" bson:"recipient_id"`
	ActorID     string           `json:"actor_id,omitempty" gorm:"type:varchar(128)" bson:"actor_id"`
	Type        NotificationType `json:"type" gorm:"type:varchar(30);not null;index" bson:"type"`
	Content     string           `json:"content" gorm:"type:text" bson:"content"`
	ReferenceID string           `json:"reference_id" gorm:"type:varchar(128);not null" bson:"reference_id"`
	GroupID     *string          `json:"group_id,omitempty" gorm:"type:varchar(200);index" bson:"group_id,omitempty"`
	PostID      *string          `json:"post_id,omitempty" gorm:"type:varchar(64);index" bson:"post_id,omitempty"`
	IsRead      bool             `json:"is_read" gorm:"not null;default:false;index:idx_notifications_recipient_read" bson:"is_read"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;index" bson:"created_at"`
}

func (n Notification) Table() Relation { return RelationNotifications }

func (n Notification) Keys() (string, string) {
	if n.PostID != nil {
		return *n.PostID, n.RecipientID
	}
	return "", n.RecipientID
}

// GroupKey is the group id for notifications of type t clustered on keyID.
func GroupKey(keyID string, t NotificationType) string {
	return keyID + ":" + string(t)
}

// Payload is the type-specific view of a notification. Exactly one of the
// concrete payload types below is returned for each NotificationType.
type Payload interface {
	NotificationType() NotificationType
}

type LikeOnPost struct{ PostID string }

type LikeOnComment struct{ CommentID, PostID string }

type NewFollower struct{ FollowerID string }

type Mention struct{ SourceID, PostID string }

type NewComment struct{ CommentID, PostID string }

type Reply struct{ CommentID, PostID string }

func (LikeOnPost) NotificationType() NotificationType    { return NotificationLikePost }
func (LikeOnComment) NotificationType() NotificationType { return NotificationLikeComment }
func (NewFollower) NotificationType() NotificationType   { return NotificationFollow }
func (Mention) NotificationType() NotificationType       { return NotificationMention }
func (NewComment) NotificationType() NotificationType    { return NotificationComment }
func (Reply) NotificationType() NotificationType         { return NotificationReply }

// Payload decodes the type-specific fields of n.
func (n Notification) Payload() (Payload, error) {
	var postID string
	if n.PostID != nil {
		postID = *n.PostID
	}
	switch n.Type {
	case NotificationLikePost:
		return LikeOnPost{PostID: n.ReferenceID}, nil
	case NotificationLikeComment:
		return LikeOnComment{CommentID: n.ReferenceID, PostID: postID}, nil
	case NotificationFollow:
		return NewFollower{FollowerID: n.ReferenceID}, nil
	case NotificationMention:
		return Mention{SourceID: n.ReferenceID, PostID: postID}, nil
	case NotificationComment:
		return NewComment{CommentID: n.ReferenceID, PostID: postID}, nil
	case NotificationReply:
		return Reply{CommentID: n.ReferenceID, PostID: postID}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", n.Type)
}

// MarkReadRequest defines the request body for marking notifications read
type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}
