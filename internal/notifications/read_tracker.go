package notifications

import (
	"context"
	"sort"
	"sync"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"go.uber.org/zap"
)

// ListLimit caps how many notifications a list view holds.
const ListLimit = 100

// Tracker serves a recipient's notification list and unread count and is
// the only path that marks notifications read.
type Tracker struct {
	store  repositories.Store
	feed   changefeed.Feed
	logger *zap.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store repositories.Store, feed changefeed.Feed, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, feed: feed, logger: logger.With(zap.String("component", "read_tracker"))}
}

func (t *Tracker) query(recipient string, f Filter) repositories.NotificationQuery {
	return repositories.NotificationQuery{
		RecipientID: recipient,
		Types:       f.Types,
		UnreadOnly:  f.UnreadOnly,
		Limit:       ListLimit,
	}
}

// List loads the recipient's notifications newest first without side
// effects.
func (t *Tracker) List(ctx context.Context, recipient string, f Filter) ([]models.Notification, error) {
	if recipient == "" {
		return nil, apperr.ErrUnauthenticated
	}
	return t.store.ListNotifications(ctx, t.query(recipient, f))
}

// UnreadCount counts the recipient's unread notifications.
func (t *Tracker) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	if recipient == "" {
		return 0, apperr.ErrUnauthenticated
	}
	return t.store.CountNotifications(ctx, repositories.NotificationQuery{RecipientID: recipient, UnreadOnly: true})
}

// MarkRead marks the given notifications of recipient read and returns how
// many changed. Rows of other recipients are never touched.
func (t *Tracker) MarkRead(ctx context.Context, recipient string, ids []string) (int, error) {
	if recipient == "" {
		return 0, apperr.ErrUnauthenticated
	}
	if len(ids) == 0 {
		return 0, apperr.Invalid("no notification ids")
	}
	changed, err := t.store.MarkRead(ctx, repositories.NotificationQuery{RecipientID: recipient, IDs: ids})
	if err != nil {
		return 0, err
	}
	return len(changed), nil
}

// Open mounts a live list: it loads the list, marks everything of the
// recipient read exactly once and keeps applying feed events until Close.
// Initial keeps the read flags as they were loaded.
func (t *Tracker) Open(ctx context.Context, recipient string, f Filter) (*ListView, error) {
	if recipient == "" {
		return nil, apperr.ErrUnauthenticated
	}

	v := &ListView{
		tracker:   t,
		recipient: recipient,
		filter:    f,
		rows:      make(map[string]models.Notification),
		updates:   make(chan []Cluster, 1),
	}
	// Post deletion reaches the view as deletes of the cascaded rows.
	v.subs = []*changefeed.Subscription{
		t.feed.Subscribe(changefeed.Filter{Relation: models.RelationNotifications, UserID: recipient}, changefeed.MaskAll, v.onNotification),
	}

	loaded, err := t.store.ListNotifications(ctx, t.query(recipient, f))
	if err != nil {
		v.Close()
		return nil, err
	}

	v.mu.Lock()
	v.initial = loaded
	for _, n := range loaded {
		if _, seen := v.rows[n.ID]; !seen {
			v.rows[n.ID] = n
		}
	}
	v.mu.Unlock()

	if err := v.markOnce(ctx); err != nil {
		t.logger.Warn("failed to mark notifications read", zap.String("recipient_id", recipient), zap.Error(err))
	}
	return v, nil
}

// ListView is a live notification list of one recipient.
type ListView struct {
	tracker   *Tracker
	recipient string
	filter    Filter
	subs      []*changefeed.Subscription
	marked    sync.Once

	mu      sync.Mutex
	initial []models.Notification
	rows    map[string]models.Notification
	closed  bool
	updates chan []Cluster
}

func (v *ListView) markOnce(ctx context.Context) error {
	var err error
	v.marked.Do(func() {
		_, err = v.tracker.store.MarkRead(ctx, repositories.NotificationQuery{RecipientID: v.recipient})
	})
	return err
}

// Initial is the list as loaded on mount, with its original read flags.
func (v *ListView) Initial() []models.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Notification, len(v.initial))
	copy(out, v.initial)
	return out
}

// Items is the current list, newest first.
func (v *ListView) Items() []models.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sortedLocked()
}

// Groups is the current list grouped under the view's filter.
func (v *ListView) Groups() []Cluster {
	return Group(v.Items(), v.filter)
}

// Updates delivers recomputed groups after each change, keeping only the
// latest undelivered set. It is closed by Close.
func (v *ListView) Updates() <-chan []Cluster {
	return v.updates
}

func (v *ListView) sortedLocked() []models.Notification {
	out := make([]models.Notification, 0, len(v.rows))
	for _, n := range v.rows {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > ListLimit {
		for _, n := range out[ListLimit:] {
			delete(v.rows, n.ID)
		}
		out = out[:ListLimit]
	}
	return out
}

func (v *ListView) onNotification(ev changefeed.Event) {
	n, ok := ev.Row.(models.Notification)
	if !ok {
		return
	}
	v.mu.Lock()
	existing, ok := v.rows[n.ID]
	switch {
	case ev.Op == changefeed.OpDelete:
		delete(v.rows, n.ID)
	case ok && existing.IsRead && !n.IsRead:
		// read is one-way; a redelivered unread copy never reverts it
	default:
		v.rows[n.ID] = n
	}
	v.mu.Unlock()
	v.publish()
}

func (v *ListView) publish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	groups := Group(v.sortedLocked(), v.filter)
	select {
	case <-v.updates:
	default:
	}
	v.updates <- groups
}

// Close stops the view. It is idempotent.
func (v *ListView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.updates)
	subs := v.subs
	v.mu.Unlock()

	for _, sub := range subs {
		v.tracker.feed.Unsubscribe(sub)
	}
}

// WatchUnread returns a live unread count for recipient. The count is
// re-queried from the store on every relevant event and never adjusted
// locally.
func (t *Tracker) WatchUnread(ctx context.Context, recipient string) (*UnreadCounter, error) {
	if recipient == "" {
		return nil, apperr.ErrUnauthenticated
	}
	c := &UnreadCounter{tracker: t, recipient: recipient, updates: make(chan int64, 1)}
	c.subs = []*changefeed.Subscription{
		t.feed.Subscribe(changefeed.Filter{Relation: models.RelationNotifications, UserID: recipient}, changefeed.MaskAll, c.refresh),
	}

	n, err := t.UnreadCount(ctx, recipient)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.mu.Lock()
	if c.seq == 0 {
		c.count = n
	}
	c.mu.Unlock()
	return c, nil
}

// UnreadCounter is a live unread notification count.
type UnreadCounter struct {
	tracker   *Tracker
	recipient string
	subs      []*changefeed.Subscription

	mu      sync.Mutex
	count   int64
	seq     uint64
	closed  bool
	updates chan int64
}

// Count is the latest known unread count.
func (c *UnreadCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Updates delivers count changes, keeping only the latest undelivered one.
// It is closed by Close.
func (c *UnreadCounter) Updates() <-chan int64 {
	return c.updates
}

func (c *UnreadCounter) refresh(ev changefeed.Event) {
	c.mu.Lock()
	stale := c.closed || ev.Seq <= c.seq
	c.mu.Unlock()
	if stale {
		return
	}

	n, err := c.tracker.store.CountNotifications(context.Background(),
		repositories.NotificationQuery{RecipientID: c.recipient, UnreadOnly: true})
	if err != nil {
		c.tracker.logger.Warn("failed to refresh unread count", zap.String("recipient_id", c.recipient), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || ev.Seq <= c.seq {
		return
	}
	c.seq = ev.Seq
	if n == c.count {
		return
	}
	c.count = n
	select {
	case <-c.updates:
	default:
	}
	c.updates <- n
}

// Close stops the counter. It is idempotent.
func (c *UnreadCounter) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.updates)
	subs := c.subs
	c.mu.Unlock()

	for _, sub := range subs {
		c.tracker.feed.Unsubscribe(sub)
	}
}
