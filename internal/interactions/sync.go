package interactions

import (
	"context"
	"sync"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
	"go.uber.org/zap"
)

// State is what a viewer sees of a post's interactions.
type State struct {
	Liked        bool  `json:"liked"`
	Subscribed   bool  `json:"subscribed"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	Deleted      bool  `json:"deleted"`
}

// aspect is one independently updated part of a State. Each aspect tracks
// the sequence number of the last event applied to it.
type aspect int

const (
	aspectLiked aspect = iota
	aspectSubscribed
	aspectLikeCount
	aspectCommentCount
	aspectPost
	numAspects
)

type entryKey struct {
	postID string
	viewer string
}

// Registry hands out views of shared per (post, viewer) entries.
type Registry struct {
	store   repositories.Store
	feed    changefeed.Feed
	toggler *Toggler
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[entryKey]*entry
}

// NewRegistry creates a Registry reading from store and listening on feed.
func NewRegistry(store repositories.Store, feed changefeed.Feed, toggler *Toggler, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:   store,
		feed:    feed,
		toggler: toggler,
		logger:  logger.With(zap.String("component", "interaction_sync")),
		entries: make(map[entryKey]*entry),
	}
}

type entry struct {
	reg  *Registry
	key  entryKey
	refs int // guarded by reg.mu

	ready   chan struct{}
	loadErr error

	mu    sync.Mutex
	state State
	seq   [numAspects]uint64
	views map[*View]struct{}
	subs  []*changefeed.Subscription
}

// Acquire returns a view of the entry for (postID, viewer), creating and
// loading it on first use. An empty viewer is anonymous.
func (r *Registry) Acquire(ctx context.Context, postID, viewer string) (*View, error) {
	k := entryKey{postID: postID, viewer: viewer}

	r.mu.Lock()
	e, ok := r.entries[k]
	if ok {
		e.refs++
	} else {
		e = &entry{reg: r, key: k, refs: 1, ready: make(chan struct{}), views: make(map[*View]struct{})}
		r.entries[k] = e
		metrics.InteractionEntriesActive.Inc()
	}
	r.mu.Unlock()

	if !ok {
		e.subscribe()
		e.loadErr = e.load(ctx)
		if e.loadErr != nil {
			r.mu.Lock()
			if r.entries[k] == e {
				delete(r.entries, k)
			}
			r.mu.Unlock()
		}
		close(e.ready)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		e.release()
		return nil, ctx.Err()
	}
	if e.loadErr != nil {
		e.release()
		return nil, e.loadErr
	}

	v := &View{entry: e, updates: make(chan State, 1)}
	e.mu.Lock()
	e.views[v] = struct{}{}
	e.mu.Unlock()
	return v, nil
}

// Len is the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (e *entry) subscribe() {
	feed := e.reg.feed
	edgeMask := changefeed.MaskInsert | changefeed.MaskUpdate | changefeed.MaskDelete

	subs := []*changefeed.Subscription{
		feed.Subscribe(changefeed.Filter{Relation: models.RelationLikes, SubjectID: e.key.postID}, edgeMask, e.onLike),
		feed.Subscribe(changefeed.Filter{Relation: models.RelationComments, SubjectID: e.key.postID},
			changefeed.MaskInsert|changefeed.MaskDelete, e.onComment),
		feed.Subscribe(changefeed.Filter{Relation: models.RelationPosts, SubjectID: e.key.postID},
			changefeed.MaskDelete, e.onPost),
	}
	if e.key.viewer != "" {
		subs = append(subs, feed.Subscribe(
			changefeed.Filter{Relation: models.RelationSubscriptions, SubjectID: e.key.postID, UserID: e.key.viewer},
			edgeMask, e.onSubscription))
	}

	e.mu.Lock()
	e.subs = subs
	e.mu.Unlock()
}

// load runs the initial queries. A value is only applied to an aspect no
// event has touched yet, so a result that raced with the feed is dropped.
func (e *entry) load(ctx context.Context) error {
	store := e.reg.store
	post, err := store.GetPost(ctx, e.key.postID)
	if err != nil {
		return err
	}

	var liked, subscribed bool
	if e.key.viewer != "" {
		liked, err = store.HasEdge(ctx, models.Edge{Relation: models.RelationLikes, SubjectID: e.key.postID, UserID: e.key.viewer})
		if err != nil {
			return err
		}
		subscribed, err = store.HasEdge(ctx, models.Edge{Relation: models.RelationSubscriptions, SubjectID: e.key.postID, UserID: e.key.viewer})
		if err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq[aspectPost] != 0 {
		return nil
	}
	if e.seq[aspectLiked] == 0 {
		e.state.Liked = liked
	}
	if e.seq[aspectSubscribed] == 0 {
		e.state.Subscribed = subscribed
	}
	if e.seq[aspectLikeCount] == 0 {
		e.state.LikeCount = post.LikeCount
	}
	if e.seq[aspectCommentCount] == 0 {
		e.state.CommentCount = post.CommentCount
	}
	return nil
}

// apply runs fn on the state if ev is newer than the last event applied to
// a, then pushes the new state to every view.
func (e *entry) apply(a aspect, seq uint64, fn func(*State)) {
	e.mu.Lock()
	if e.state.Deleted || seq <= e.seq[a] {
		e.mu.Unlock()
		return
	}
	e.seq[a] = seq
	before := e.state
	fn(&e.state)
	changed := e.state != before
	e.mu.Unlock()

	if changed {
		e.broadcast()
	}
}

// stale reports whether an event for a would be dropped.
func (e *entry) stale(a aspect, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Deleted || seq <= e.seq[a]
}

func (e *entry) onLike(ev changefeed.Event) {
	edge, ok := ev.Row.(models.Edge)
	if !ok {
		return
	}
	if e.key.viewer != "" && edge.UserID == e.key.viewer {
		on := ev.Op != changefeed.OpDelete
		e.apply(aspectLiked, ev.Seq, func(s *State) { s.Liked = on })
	}
	if e.stale(aspectLikeCount, ev.Seq) {
		return
	}
	n, err := e.reg.store.CountEdges(context.Background(), models.RelationLikes, e.key.postID)
	if err != nil {
		e.reg.logger.Warn("failed to refresh like count", zap.String("post_id", e.key.postID), zap.Error(err))
		return
	}
	e.apply(aspectLikeCount, ev.Seq, func(s *State) { s.LikeCount = n })
}

func (e *entry) onSubscription(ev changefeed.Event) {
	on := ev.Op != changefeed.OpDelete
	e.apply(aspectSubscribed, ev.Seq, func(s *State) { s.Subscribed = on })
}

func (e *entry) onComment(ev changefeed.Event) {
	if e.stale(aspectCommentCount, ev.Seq) {
		return
	}
	n, err := e.reg.store.CountComments(context.Background(), e.key.postID)
	if err != nil {
		e.reg.logger.Warn("failed to refresh comment count", zap.String("post_id", e.key.postID), zap.Error(err))
		return
	}
	e.apply(aspectCommentCount, ev.Seq, func(s *State) { s.CommentCount = n })
}

func (e *entry) onPost(ev changefeed.Event) {
	e.apply(aspectPost, ev.Seq, func(s *State) { *s = State{Deleted: true} })
}

// fold applies the result of a toggle issued through a view of this entry.
// seen is the aspect's sequence number from before the toggle; if an event
// for the aspect was applied since, the state already reflects a write at
// least as new and the result is dropped.
func (e *entry) fold(a aspect, seen uint64, fn func(*State)) State {
	e.mu.Lock()
	before := e.state
	if !e.state.Deleted && e.seq[a] == seen {
		fn(&e.state)
	}
	after := e.state
	e.mu.Unlock()

	if after != before {
		e.broadcast()
	}
	return after
}

func (e *entry) broadcast() {
	e.mu.Lock()
	st := e.state
	views := make([]*View, 0, len(e.views))
	for v := range e.views {
		views = append(views, v)
	}
	e.mu.Unlock()

	for _, v := range views {
		v.push(st)
	}
}

// release drops one reference. The last one removes the entry and cancels
// its feed subscriptions; no lock is held while unsubscribing since a
// delivery in progress may be waiting on e.mu.
func (e *entry) release() {
	r := e.reg
	r.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && r.entries[e.key] == e {
		delete(r.entries, e.key)
	}
	r.mu.Unlock()
	if !last {
		return
	}

	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	for _, sub := range subs {
		r.feed.Unsubscribe(sub)
	}
	metrics.InteractionEntriesActive.Dec()
}

// View is one consumer's handle on a shared entry.
type View struct {
	entry   *entry
	updates chan State

	mu       sync.Mutex
	released bool
}

// State is the current state of the entry.
func (v *View) State() State {
	v.entry.mu.Lock()
	defer v.entry.mu.Unlock()
	return v.entry.state
}

// Updates delivers state changes, keeping only the latest undelivered one.
// It is closed by Release.
func (v *View) Updates() <-chan State {
	return v.updates
}

func (v *View) push(st State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	select {
	case <-v.updates:
	default:
	}
	v.updates <- st
}

// Release detaches the view. It is idempotent.
func (v *View) Release() {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return
	}
	v.released = true
	close(v.updates)
	v.mu.Unlock()

	e := v.entry
	e.mu.Lock()
	delete(e.views, v)
	e.mu.Unlock()
	e.release()
}

// ToggleLike flips the viewer's like on the post.
func (v *View) ToggleLike(ctx context.Context) (State, error) {
	return v.toggle(ctx, models.RelationLikes, aspectLiked, func(s *State, on bool) { s.Liked = on })
}

// ToggleSubscribe flips the viewer's subscription to the post.
func (v *View) ToggleSubscribe(ctx context.Context) (State, error) {
	return v.toggle(ctx, models.RelationSubscriptions, aspectSubscribed, func(s *State, on bool) { s.Subscribed = on })
}

func (v *View) toggle(ctx context.Context, rel models.Relation, a aspect, set func(*State, bool)) (State, error) {
	e := v.entry
	e.mu.Lock()
	seen := e.seq[a]
	e.mu.Unlock()

	on, err := e.reg.toggler.Toggle(ctx, e.key.viewer, rel, e.key.postID)
	if err != nil {
		return v.State(), err
	}
	return e.fold(a, seen, func(s *State) { set(s, on) }), nil
}
