package models

import "time"

// Edge is one row of a toggle relation. Existence means "on".
//
// For likes and subscriptions the subject is a post, for comment_likes a
// comment, and for follows the followed user (UserID is the follower).
type Edge struct {
	Relation  Relation  `json:"relation"`
	SubjectID string    `json:"subject_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Edge) Table() Relation { return e.Relation }

func (e Edge) Keys() (string, string) { return e.SubjectID, e.UserID }
