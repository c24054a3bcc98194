package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationPayload(t *testing.T) {
	post := "p1"
	cases := []struct {
		n    Notification
		want Payload
	}{
		{Notification{Type: NotificationLikePost, ReferenceID: "p1", PostID: &post}, LikeOnPost{PostID: "p1"}},
		{Notification{Type: NotificationLikeComment, ReferenceID: "c1", PostID: &post}, LikeOnComment{CommentID: "c1", PostID: "p1"}},
		{Notification{Type: NotificationFollow, ReferenceID: "u9"}, NewFollower{FollowerID: "u9"}},
		{Notification{Type: NotificationMention, ReferenceID: "c2", PostID: &post}, Mention{SourceID: "c2", PostID: "p1"}},
		{Notification{Type: NotificationComment, ReferenceID: "c3", PostID: &post}, NewComment{CommentID: "c3", PostID: "p1"}},
		{Notification{Type: NotificationReply, ReferenceID: "c4", PostID: &post}, Reply{CommentID: "c4", PostID: "p1"}},
	}
	for _, tc := range cases {
		got, err := tc.n.Payload()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.n.Type, got.NotificationType())
	}

	_, err := Notification{Type: "poke"}.Payload()
	assert.Error(t, err)
}

func TestPostForViewerHidesAnonymousAuthor(t *testing.T) {
	p := Post{ID: "p1", AuthorID: "u2", Anonymous: true}
	assert.Equal(t, "", p.ForViewer("u1").AuthorID)
	assert.Equal(t, "u2", p.ForViewer("u2").AuthorID)

	p.Anonymous = false
	assert.Equal(t, "u2", p.ForViewer("u1").AuthorID)
}

func TestNotificationKeys(t *testing.T) {
	post := "p1"
	subject, user := Notification{RecipientID: "u2", PostID: &post}.Keys()
	assert.Equal(t, "p1", subject)
	assert.Equal(t, "u2", user)

	subject, _ = Notification{RecipientID: "u2"}.Keys()
	assert.Equal(t, "", subject)
}
