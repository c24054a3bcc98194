// Package notifications derives notification rows from user actions,
// collapses them into display groups and tracks what a recipient has read.
package notifications

import (
	"context"
	"regexp"
	"strings"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
	"go.uber.org/zap"
)

// anonymousActor is shown in place of the actor's name when the post or
// comment that caused the notification is anonymous.
const anonymousActor = "Someone"

var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.@])@([A-Za-z0-9_.]{2,32})`)

// ParseMentions returns the distinct usernames mentioned in text, in order of
// first appearance.
func ParseMentions(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(m[1], ".")
		if len(name) < 2 || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Emitter writes notifications for successful writes. It never fails the
// caller: every problem is logged and counted.
type Emitter struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewEmitter creates an Emitter writing to store.
func NewEmitter(store repositories.Store, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{store: store, logger: logger.With(zap.String("component", "notification_emitter"))}
}

// recipients collects notifications for one emission, suppressing the actor
// and repeat (recipient, type) pairs.
type recipients struct {
	actor string
	seen  map[string]bool
	out   []models.Notification
}

func newRecipients(actor string) *recipients {
	return &recipients{actor: actor, seen: make(map[string]bool)}
}

func (r *recipients) has(user string, t models.NotificationType) bool {
	return r.seen[user+"\x00"+string(t)]
}

func (r *recipients) add(user string, n models.Notification) {
	if user == "" || user == r.actor || r.has(user, n.Type) {
		return
	}
	r.seen[user+"\x00"+string(n.Type)] = true
	n.RecipientID = user
	n.ActorID = r.actor
	r.out = append(r.out, n)
}

func build(t models.NotificationType, actorName, referenceID, keyID string, postID *string, phrase string) models.Notification {
	group := models.GroupKey(keyID, t)
	return models.Notification{
		Type:        t,
		Content:     actorName + " " + phrase,
		ReferenceID: referenceID,
		GroupID:     &group,
		PostID:      postID,
	}
}

// EdgeCreated emits for a like, comment like or follow that a toggle
// created. It is registered as the toggle creation hook.
func (e *Emitter) EdgeCreated(ctx context.Context, edge models.Edge) {
	out, err := e.planEdge(ctx, edge)
	if err != nil {
		e.logger.Warn("failed to plan notifications",
			zap.String("relation", string(edge.Relation)),
			zap.String("subject_id", edge.SubjectID),
			zap.Error(err),
		)
		metrics.NotificationEmitFailures.WithLabelValues(string(edgeType(edge.Relation))).Inc()
		return
	}
	e.write(ctx, out)
}

func edgeType(rel models.Relation) models.NotificationType {
	switch rel {
	case models.RelationLikes:
		return models.NotificationLikePost
	case models.RelationCommentLikes:
		return models.NotificationLikeComment
	case models.RelationFollows:
		return models.NotificationFollow
	}
	return ""
}

func (e *Emitter) planEdge(ctx context.Context, edge models.Edge) ([]models.Notification, error) {
	actor := edge.UserID
	r := newRecipients(actor)

	switch edge.Relation {
	case models.RelationLikes:
		post, err := e.store.GetPost(ctx, edge.SubjectID)
		if err != nil {
			return nil, err
		}
		if post.AuthorID == actor {
			return nil, nil
		}
		name := e.actorName(ctx, actor, false)
		r.add(post.AuthorID, build(models.NotificationLikePost, name, post.ID, post.ID, &post.ID, phraseLikePost))

	case models.RelationCommentLikes:
		comment, err := e.store.GetComment(ctx, edge.SubjectID)
		if err != nil {
			return nil, err
		}
		if comment.AuthorID == actor {
			return nil, nil
		}
		name := e.actorName(ctx, actor, false)
		postID := comment.PostID
		r.add(comment.AuthorID, build(models.NotificationLikeComment, name, comment.ID, comment.ID, &postID, phraseLikeComment))

	case models.RelationFollows:
		if edge.SubjectID == actor {
			return nil, nil
		}
		name := e.actorName(ctx, actor, false)
		r.add(edge.SubjectID, build(models.NotificationFollow, name, actor, actor, nil, phraseFollow))
	}
	return r.out, nil
}

// CommentCreated emits reply, comment and mention notifications for a new
// comment on post.
func (e *Emitter) CommentCreated(ctx context.Context, post models.Post, comment models.Comment) {
	out, err := e.planComment(ctx, post, comment)
	if err != nil {
		e.logger.Warn("failed to plan notifications",
			zap.String("comment_id", comment.ID),
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		metrics.NotificationEmitFailures.WithLabelValues(string(models.NotificationComment)).Inc()
	}
	e.write(ctx, out)
}

// planComment returns what it could plan even when a later lookup fails.
func (e *Emitter) planComment(ctx context.Context, post models.Post, comment models.Comment) ([]models.Notification, error) {
	actor := comment.AuthorID
	r := newRecipients(actor)
	name := e.actorName(ctx, actor, comment.Anonymous)
	postID := post.ID

	// A parent author gets reply_comment instead of comment.
	var replyTo string
	if comment.ParentID != nil {
		parent, err := e.store.GetComment(ctx, *comment.ParentID)
		if err != nil {
			return r.out, err
		}
		replyTo = parent.AuthorID
		r.add(replyTo, build(models.NotificationReply, name, comment.ID, parent.ID, &postID, phraseReply))
	}

	if post.AuthorID != replyTo {
		r.add(post.AuthorID, build(models.NotificationComment, name, comment.ID, post.ID, &postID, phraseCommentOwn))
	}
	subscribers, err := e.store.ListEdgeUsers(ctx, models.RelationSubscriptions, post.ID)
	if err != nil {
		return r.out, err
	}
	for _, sub := range subscribers {
		if sub == replyTo {
			continue
		}
		r.add(sub, build(models.NotificationComment, name, comment.ID, post.ID, &postID, phraseCommentSubscribed))
	}

	mentions, err := e.planMentions(ctx, r, name, comment.Content, comment.ID, &postID)
	if err != nil {
		return r.out, err
	}
	return mentions, nil
}

// PostCreated emits mention notifications for a new post.
func (e *Emitter) PostCreated(ctx context.Context, post models.Post) {
	r := newRecipients(post.AuthorID)
	name := e.actorName(ctx, post.AuthorID, post.Anonymous)
	postID := post.ID
	out, err := e.planMentions(ctx, r, name, post.Content, post.ID, &postID)
	if err != nil {
		e.logger.Warn("failed to resolve mentions", zap.String("post_id", post.ID), zap.Error(err))
		metrics.NotificationEmitFailures.WithLabelValues(string(models.NotificationMention)).Inc()
	}
	e.write(ctx, out)
}

func (e *Emitter) planMentions(ctx context.Context, r *recipients, name, text, sourceID string, postID *string) ([]models.Notification, error) {
	names := ParseMentions(text)
	if len(names) == 0 {
		return r.out, nil
	}
	users, err := e.store.GetUsersByUsername(ctx, names)
	if err != nil {
		return r.out, err
	}
	for _, u := range users {
		r.add(u.ID, build(models.NotificationMention, name, sourceID, sourceID, postID, phraseMention))
	}
	return r.out, nil
}

func (e *Emitter) actorName(ctx context.Context, actor string, anonymous bool) string {
	if anonymous {
		return anonymousActor
	}
	user, err := e.store.GetUser(ctx, actor)
	if err != nil {
		e.logger.Debug("actor profile unavailable", zap.String("actor", actor), zap.Error(err))
		return anonymousActor
	}
	if user.Username == "" {
		return anonymousActor
	}
	return user.Username
}

func (e *Emitter) write(ctx context.Context, out []models.Notification) {
	for i := range out {
		n := out[i]
		if err := e.store.InsertNotification(ctx, &n); err != nil {
			metrics.NotificationEmitFailures.WithLabelValues(string(n.Type)).Inc()
			e.logger.Error("failed to write notification",
				zap.String("type", string(n.Type)),
				zap.String("recipient_id", n.RecipientID),
				zap.String("reference_id", n.ReferenceID),
				zap.Error(err),
			)
			continue
		}
		metrics.NotificationsEmitted.WithLabelValues(string(n.Type)).Inc()
	}
}
