// Package changefeed delivers row-level insert, update and delete events to
// filtered subscribers. Delivery is at-least-once and unordered across
// relations; every event carries a sequence number so consumers can drop
// duplicates and stale redeliveries.
package changefeed

import (
	"github.com/anonto42/nano-pulse/backend/internal/models"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Mask selects which operations a subscription receives.
type Mask uint8

const (
	MaskInsert Mask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

// Has reports whether op is selected by m.
func (m Mask) Has(op Op) bool {
	switch op {
	case OpInsert:
		return m&MaskInsert != 0
	case OpUpdate:
		return m&MaskUpdate != 0
	case OpDelete:
		return m&MaskDelete != 0
	}
	return false
}

// Event is one delivered change. For deletes Row holds at least the keys of
// the removed row.
type Event struct {
	Seq uint64
	Op  Op
	Row models.Row
}

// Relation is the relation the event's row belongs to.
func (e Event) Relation() models.Relation {
	return e.Row.Table()
}

// Filter narrows a subscription to one relation and optionally to rows with
// a given subject and/or user. Empty fields match anything.
type Filter struct {
	Relation  models.Relation
	SubjectID string
	UserID    string
}

// Match reports whether row passes f.
func (f Filter) Match(row models.Row) bool {
	if row == nil || row.Table() != f.Relation {
		return false
	}
	subject, user := row.Keys()
	if f.SubjectID != "" && subject != f.SubjectID {
		return false
	}
	if f.UserID != "" && user != f.UserID {
		return false
	}
	return true
}

// Handler receives events for a subscription.
type Handler func(Event)

// Feed is the subscriber side of the change feed.
type Feed interface {
	Subscribe(filter Filter, mask Mask, fn Handler) *Subscription
	Unsubscribe(sub *Subscription)
}

// Publisher is the writer side of the change feed.
type Publisher interface {
	Publish(op Op, row models.Row) Event
}
