package notifications

import (
	"testing"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

func note(id, actor string, t models.NotificationType, group string, content string, age time.Duration, read bool) models.Notification {
	n := models.Notification{
		ID: id, RecipientID: "u2", ActorID: actor, Type: t, Content: content,
		ReferenceID: "ref", IsRead: read, CreatedAt: base.Add(-age),
	}
	if group != "" {
		n.GroupID = &group
	}
	return n
}

func sample() []models.Notification {
	return []models.Notification{
		note("n5", "u4", models.NotificationLikePost, "p1:like_post", "dave liked your post", 1*time.Minute, false),
		note("n4", "u1", models.NotificationFollow, "u1:follow", "alice started following you", 2*time.Minute, false),
		note("n3", "u3", models.NotificationLikePost, "p1:like_post", "carol liked your post", 3*time.Minute, true),
		note("n2", "u3", models.NotificationFollow, "u3:follow", "carol started following you", 4*time.Minute, true),
		note("n1", "u1", models.NotificationLikePost, "p1:like_post", "alice liked your post", 5*time.Minute, true),
		note("n0", "u1", models.NotificationMention, "", "alice mentioned you", 6*time.Minute, true),
	}
}

func TestGroup_CollapsesByGroupID(t *testing.T) {
	clusters := Group(sample(), Filter{})
	require.Len(t, clusters, 4)

	likes := clusters[0]
	assert.Equal(t, "p1:like_post", likes.ID)
	assert.Equal(t, CategoryLikes, likes.Category)
	assert.Equal(t, 3, likes.Count)
	assert.Equal(t, 3, likes.ActorCount)
	assert.True(t, likes.Unread)
	assert.Equal(t, "dave and 2 others liked your post", likes.Summary)
	assert.Equal(t, []string{"n5", "n3", "n1"}, ids(likes.Notifications))
	assert.Equal(t, base.Add(-time.Minute), likes.LatestAt)

	assert.Equal(t, "u1:follow", clusters[1].ID)
	assert.Equal(t, "u3:follow", clusters[2].ID)
	assert.False(t, clusters[2].Unread)
	assert.Equal(t, "carol started following you", clusters[2].Summary)

	assert.Equal(t, "n0", clusters[3].ID)
	assert.Equal(t, CategoryMentions, clusters[3].Category)
}

func TestGroup_FiltersBeforeGrouping(t *testing.T) {
	clusters := Group(sample(), Filter{UnreadOnly: true})
	require.Len(t, clusters, 2)
	assert.Equal(t, 1, clusters[0].Count)
	assert.Equal(t, "dave liked your post", clusters[0].Summary)

	clusters = Group(sample(), Filter{Types: []models.NotificationType{models.NotificationFollow}})
	require.Len(t, clusters, 2)
	for _, c := range clusters {
		assert.Equal(t, CategoryFollows, c.Category)
		assert.Equal(t, 1, c.Count)
	}
}

func TestGroup_IsPure(t *testing.T) {
	input := sample()
	first := Group(input, Filter{})
	second := Group(input, Filter{})
	assert.Equal(t, first, second)
	assert.Equal(t, sample(), input)
}

func TestGroup_TwoActorsSummary(t *testing.T) {
	input := []models.Notification{
		note("b", "u3", models.NotificationComment, "p1:comment", "carol commented on a post you follow", time.Minute, false),
		note("a", "u1", models.NotificationComment, "p1:comment", "alice commented on a post you follow", 2*time.Minute, false),
		note("z", "u1", models.NotificationComment, "p1:comment", "alice commented on a post you follow", 3*time.Minute, false),
	}
	clusters := Group(input, Filter{})
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Count)
	assert.Equal(t, 2, clusters[0].ActorCount)
	assert.Equal(t, "carol and 1 other commented on a post you follow", clusters[0].Summary)
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil, Filter{}))
}

func TestBucket(t *testing.T) {
	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	at := func(id string, ts time.Time) Cluster { return Cluster{ID: id, LatestAt: ts} }

	b := Bucket([]Cluster{
		at("today", now.Add(-2*time.Hour)),
		at("midnight", time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)),
		at("yesterday", now.Add(-20*time.Hour)),
		at("week", now.AddDate(0, 0, -5)),
		at("older", now.AddDate(0, 0, -30)),
	}, now)

	assert.Equal(t, []string{"today", "midnight"}, clusterIDs(b.Today))
	assert.Equal(t, []string{"yesterday"}, clusterIDs(b.Yesterday))
	assert.Equal(t, []string{"week"}, clusterIDs(b.ThisWeek))
	assert.Equal(t, []string{"older"}, clusterIDs(b.Older))
}

func ids(list []models.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func clusterIDs(list []Cluster) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}
