package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
)

const (
	phraseLikePost          = "liked your post"
	phraseLikeComment       = "liked your comment"
	phraseFollow            = "started following you"
	phraseMention           = "mentioned you"
	phraseCommentOwn        = "commented on your post"
	phraseCommentSubscribed = "commented on a post you follow"
	phraseReply             = "replied to your comment"
)

var phrases = map[models.NotificationType][]string{
	models.NotificationLikePost:    {phraseLikePost},
	models.NotificationLikeComment: {phraseLikeComment},
	models.NotificationFollow:      {phraseFollow},
	models.NotificationMention:     {phraseMention},
	models.NotificationComment:     {phraseCommentOwn, phraseCommentSubscribed},
	models.NotificationReply:       {phraseReply},
}

// Category is the tab a notification is listed under.
type Category string

const (
	CategoryLikes    Category = "likes"
	CategoryComments Category = "comments"
	CategoryFollows  Category = "follows"
	CategoryMentions Category = "mentions"
)

// CategoryOf maps a notification type onto its category.
func CategoryOf(t models.NotificationType) Category {
	switch t {
	case models.NotificationLikePost, models.NotificationLikeComment:
		return CategoryLikes
	case models.NotificationComment, models.NotificationReply:
		return CategoryComments
	case models.NotificationFollow:
		return CategoryFollows
	case models.NotificationMention:
		return CategoryMentions
	}
	return ""
}

// Filter selects which notifications are shown. Zero value shows all.
type Filter struct {
	Types      []models.NotificationType
	UnreadOnly bool
}

// Match reports whether n passes f.
func (f Filter) Match(n models.Notification) bool {
	if f.UnreadOnly && n.IsRead {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if n.Type == t {
			return true
		}
	}
	return false
}

// Cluster is a set of notifications shown as one entry.
type Cluster struct {
	ID            string                  `json:"id"`
	Type          models.NotificationType `json:"type"`
	Category      Category                `json:"category"`
	Count         int                     `json:"count"`
	ActorCount    int                     `json:"actor_count"`
	Unread        bool                    `json:"unread"`
	Summary       string                  `json:"summary"`
	LatestAt      time.Time               `json:"latest_at"`
	Notifications []models.Notification   `json:"notifications"`
}

// Group filters records, which must be newest first, and collapses them by
// group id (or by id when a record has none). Clusters are ordered by their
// newest member and members keep their input order.
func Group(records []models.Notification, f Filter) []Cluster {
	index := make(map[string]int)
	clusters := make([]Cluster, 0)
	for _, n := range records {
		if !f.Match(n) {
			continue
		}
		key := n.ID
		if n.GroupID != nil && *n.GroupID != "" {
			key = *n.GroupID
		}
		i, ok := index[key]
		if !ok {
			i = len(clusters)
			index[key] = i
			clusters = append(clusters, Cluster{ID: key, Type: n.Type, Category: CategoryOf(n.Type)})
		}
		clusters[i].Notifications = append(clusters[i].Notifications, n)
	}

	for i := range clusters {
		summarize(&clusters[i])
	}
	return clusters
}

func summarize(c *Cluster) {
	actors := make(map[string]bool)
	for _, n := range c.Notifications {
		actors[n.ActorID] = true
		if !n.IsRead {
			c.Unread = true
		}
		if n.CreatedAt.After(c.LatestAt) {
			c.LatestAt = n.CreatedAt
		}
	}
	c.Count = len(c.Notifications)
	c.ActorCount = len(actors)

	newest := c.Notifications[0].Content
	if c.ActorCount <= 1 {
		c.Summary = newest
		return
	}
	name, phrase := splitContent(c.Type, newest)
	others := c.ActorCount - 1
	if others == 1 {
		c.Summary = fmt.Sprintf("%s and 1 other %s", name, phrase)
		return
	}
	c.Summary = fmt.Sprintf("%s and %d others %s", name, others, phrase)
}

// splitContent separates the actor name from the phrase of a rendered
// notification.
func splitContent(t models.NotificationType, content string) (string, string) {
	for _, phrase := range phrases[t] {
		if name, ok := strings.CutSuffix(content, " "+phrase); ok {
			return name, phrase
		}
	}
	if i := strings.IndexByte(content, ' '); i > 0 {
		return content[:i], content[i+1:]
	}
	return content, ""
}

// Buckets splits clusters by the day of their newest member.
type Buckets struct {
	Today     []Cluster `json:"today"`
	Yesterday []Cluster `json:"yesterday"`
	ThisWeek  []Cluster `json:"this_week"`
	Older     []Cluster `json:"older"`
}

// Bucket splits clusters into today, yesterday, the rest of the last seven
// days and older, using now's location for day boundaries.
func Bucket(clusters []Cluster, now time.Time) Buckets {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	b := Buckets{Today: []Cluster{}, Yesterday: []Cluster{}, ThisWeek: []Cluster{}, Older: []Cluster{}}
	for _, c := range clusters {
		switch at := c.LatestAt; {
		case !at.Before(todayStart):
			b.Today = append(b.Today, c)
		case !at.Before(yesterdayStart):
			b.Yesterday = append(b.Yesterday, c)
		case !at.Before(weekStart):
			b.ThisWeek = append(b.ThisWeek, c)
		default:
			b.Older = append(b.Older, c)
		}
	}
	return b
}
