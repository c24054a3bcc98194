package models

// Relation names a table (or collection) that the store manages and the
// change feed reports on.
type Relation string

const (
	RelationUsers         Relation = "users"
	RelationPosts         Relation = "posts"
	RelationComments      Relation = "comments"
	RelationLikes         Relation = "likes"
	RelationSubscriptions Relation = "subscriptions"
	RelationCommentLikes  Relation = "comment_likes"
	RelationFollows       Relation = "follows"
	RelationNotifications Relation = "notifications"
)

// EdgeRelations lists the toggle relations in a stable order.
var EdgeRelations = []Relation{RelationLikes, RelationSubscriptions, RelationCommentLikes, RelationFollows}

// IsEdge reports whether rows of r encode a boolean fact by existence alone.
func (r Relation) IsEdge() bool {
	switch r {
	case RelationLikes, RelationSubscriptions, RelationCommentLikes, RelationFollows:
		return true
	}
	return false
}

// Row is a record delivered on the change feed. Keys returns the subject the
// row hangs off (post, comment or followed user) and the user it belongs to,
// which is what feed filters match on.
type Row interface {
	Table() Relation
	Keys() (subjectID, userID string)
}
