package changefeed

import (
	"sync"
	"sync/atomic"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
	"go.uber.org/zap"
)

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id     uint64
	filter Filter
	mask   Mask
	fn     Handler

	// mu is held for the whole of a delivery, so Unsubscribe returning
	// means no delivery is running and none will start.
	mu   sync.Mutex
	live bool
}

// Filter returns the filter the subscription was created with.
func (s *Subscription) Filter() Filter { return s.filter }

func (s *Subscription) deliver(ev Event, logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("feed handler panicked",
				zap.Any("panic", r),
				zap.String("relation", string(ev.Relation())),
				zap.Uint64("seq", ev.Seq),
			)
		}
	}()
	s.fn(ev)
}

// Broker is an in-process Feed and Publisher. Handlers run synchronously on
// the publishing goroutine; they must not call Unsubscribe on their own
// subscription from inside the handler.
type Broker struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	taps   []func(Event)
	nextID uint64

	seq atomic.Uint64
}

// NewBroker creates an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers fn for events matching filter and mask.
func (b *Broker) Subscribe(filter Filter, mask Mask, fn Handler) *Subscription {
	b.mu.Lock()
	b.nextID++
	sub := &Subscription{id: b.nextID, filter: filter, mask: mask, fn: fn, live: true}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	metrics.FeedSubscriptionsActive.Inc()
	return sub
}

// Unsubscribe removes sub. It is idempotent and waits for an in-flight
// delivery to sub to finish.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	sub.mu.Lock()
	sub.live = false
	sub.mu.Unlock()

	if ok {
		metrics.FeedSubscriptionsActive.Dec()
	}
}

// Tap registers fn to observe every locally published event. Relays use it
// to forward events to other instances.
func (b *Broker) Tap(fn func(Event)) {
	b.mu.Lock()
	b.taps = append(b.taps, fn)
	b.mu.Unlock()
}

// Publish assigns the next sequence number to a change, delivers it to local
// subscribers and hands it to taps.
func (b *Broker) Publish(op Op, row models.Row) Event {
	ev := b.dispatch(op, row)

	b.mu.RLock()
	taps := make([]func(Event), len(b.taps))
	copy(taps, b.taps)
	b.mu.RUnlock()
	for _, tap := range taps {
		tap(ev)
	}
	return ev
}

// Deliver dispatches a change that originated elsewhere (another instance or
// a database change stream) to local subscribers only.
func (b *Broker) Deliver(op Op, row models.Row) Event {
	return b.dispatch(op, row)
}

func (b *Broker) dispatch(op Op, row models.Row) Event {
	ev := Event{Seq: b.seq.Add(1), Op: op, Row: row}
	metrics.FeedEventsPublished.WithLabelValues(string(row.Table()), string(op)).Inc()

	b.mu.RLock()
	matched := make([]*Subscription, 0, 4)
	for _, sub := range b.subs {
		if sub.mask.Has(op) && sub.filter.Match(row) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.deliver(ev, b.logger)
	}
	return ev
}

// Len is the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
