package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the profile part of an account. ID is the identity provider's
// subject (Firebase UID or the JWT user_id claim).
type User struct {
	ID          string    `json:"id" gorm:"type:varchar(128);primaryKey" bson:"_id"`
	Username    string    `json:"username" gorm:"type:varchar(32);uniqueIndex;not null" bson:"username"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(64)" bson:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

func (u User) Table() Relation { return RelationUsers }

func (u User) Keys() (string, string) { return u.ID, u.ID }

// UserCompact is the slice of a profile embedded in other responses.
type UserCompact struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (u User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CreateProfileRequest defines the request body for creating the caller's profile
type CreateProfileRequest struct {
	Username    string `json:"username" validate:"required,min=2,max=32,username"`
	DisplayName string `json:"display_name" validate:"max=64"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
}

// FirebaseLoginRequest exchanges a Firebase ID token for an API token. Username
// is only used when the account has no profile yet.
type FirebaseLoginRequest struct {
	IDToken  string `json:"id_token" validate:"required"`
	Username string `json:"username" validate:"omitempty,min=2,max=32,username"`
}
