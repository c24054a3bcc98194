package changefeed

import (
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func like(post, user string) models.Edge {
	return models.Edge{Relation: models.RelationLikes, SubjectID: post, UserID: user}
}

func TestBroker_FilterAndMask(t *testing.T) {
	b := NewBroker(nil)

	var got []Event
	b.Subscribe(Filter{Relation: models.RelationLikes, SubjectID: "p1"}, MaskInsert|MaskDelete, func(ev Event) {
		got = append(got, ev)
	})

	b.Publish(OpInsert, like("p1", "u1"))
	b.Publish(OpInsert, like("p2", "u1"))
	b.Publish(OpUpdate, like("p1", "u1"))
	b.Publish(OpInsert, models.Edge{Relation: models.RelationSubscriptions, SubjectID: "p1", UserID: "u1"})
	b.Publish(OpDelete, like("p1", "u3"))

	require.Len(t, got, 2)
	assert.Equal(t, OpInsert, got[0].Op)
	assert.Equal(t, OpDelete, got[1].Op)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestBroker_UserFilter(t *testing.T) {
	b := NewBroker(nil)
	post := "p1"

	count := 0
	b.Subscribe(Filter{Relation: models.RelationNotifications, UserID: "u2"}, MaskAll, func(Event) { count++ })

	b.Publish(OpInsert, models.Notification{ID: "n1", RecipientID: "u2", PostID: &post})
	b.Publish(OpInsert, models.Notification{ID: "n2", RecipientID: "u3", PostID: &post})
	b.Publish(OpUpdate, models.Notification{ID: "n1", RecipientID: "u2", IsRead: true})

	assert.Equal(t, 2, count)
}

func TestBroker_UnsubscribeIsIdempotentAndFinal(t *testing.T) {
	b := NewBroker(nil)

	count := 0
	sub := b.Subscribe(Filter{Relation: models.RelationLikes}, MaskAll, func(Event) { count++ })
	b.Publish(OpInsert, like("p1", "u1"))

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Publish(OpInsert, like("p1", "u2"))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.Len())
}

func TestBroker_UnsubscribeWaitsForInFlightDelivery(t *testing.T) {
	b := NewBroker(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	sub := b.Subscribe(Filter{Relation: models.RelationLikes}, MaskAll, func(Event) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	})

	go b.Publish(OpInsert, like("p1", "u1"))
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		b.Unsubscribe(sub)
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("unsubscribe returned while a delivery was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-unsubscribed

	b.Publish(OpInsert, like("p1", "u2"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestBroker_TapsSeeOnlyLocalPublishes(t *testing.T) {
	b := NewBroker(nil)

	var tapped []Op
	b.Tap(func(ev Event) { tapped = append(tapped, ev.Op) })

	delivered := 0
	b.Subscribe(Filter{Relation: models.RelationLikes}, MaskAll, func(Event) { delivered++ })

	b.Publish(OpInsert, like("p1", "u1"))
	b.Deliver(OpDelete, like("p1", "u1"))

	assert.Equal(t, []Op{OpInsert}, tapped)
	assert.Equal(t, 2, delivered)
}

func TestBroker_HandlerPanicDoesNotStopOthers(t *testing.T) {
	b := NewBroker(nil)

	b.Subscribe(Filter{Relation: models.RelationLikes}, MaskAll, func(Event) { panic("boom") })
	ok := false
	b.Subscribe(Filter{Relation: models.RelationLikes}, MaskAll, func(Event) { ok = true })

	assert.NotPanics(t, func() { b.Publish(OpInsert, like("p1", "u1")) })
	assert.True(t, ok)
}
