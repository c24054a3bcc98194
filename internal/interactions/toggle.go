// Package interactions flips per-user toggle relations and keeps the
// per-post interaction state of each viewer in sync with the change feed.
package interactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
	"go.uber.org/zap"
)

// CreatedHook runs after a toggle inserted a new row.
type CreatedHook func(ctx context.Context, edge models.Edge)

// Toggler turns an edge on or off for an actor.
type Toggler struct {
	store  repositories.Store
	logger *zap.Logger
	hooks  map[models.Relation]CreatedHook
}

// NewToggler creates a Toggler over store.
func NewToggler(store repositories.Store, logger *zap.Logger) *Toggler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toggler{
		store:  store,
		logger: logger.With(zap.String("component", "toggler")),
		hooks:  make(map[models.Relation]CreatedHook),
	}
}

// OnCreate registers hook for rows of rel that a toggle created. It must be
// called before the Toggler is shared.
func (t *Toggler) OnCreate(rel models.Relation, hook CreatedHook) {
	t.hooks[rel] = hook
}

// Toggle flips the (rel, subjectID, actor) row and returns whether it is now
// present. Counts are never touched here; they are derived on read.
func (t *Toggler) Toggle(ctx context.Context, actor string, rel models.Relation, subjectID string) (bool, error) {
	if actor == "" {
		return false, apperr.ErrUnauthenticated
	}
	if !rel.IsEdge() {
		return false, apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", rel))
	}
	if err := t.checkSubject(ctx, actor, rel, subjectID); err != nil {
		return false, err
	}

	edge := models.Edge{Relation: rel, SubjectID: subjectID, UserID: actor}
	present, err := t.store.HasEdge(ctx, edge)
	if err != nil {
		return false, err
	}

	if present {
		if _, err := t.store.DeleteEdge(ctx, edge); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := t.store.InsertEdge(ctx, &edge); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.ToggleConflictsAbsorbed.WithLabelValues(string(rel)).Inc()
			t.logger.Debug("toggle insert already present",
				zap.String("relation", string(rel)),
				zap.String("subject_id", subjectID),
				zap.String("actor", actor),
			)
			return true, nil
		}
		return false, err
	}

	if hook, ok := t.hooks[rel]; ok {
		hook(ctx, edge)
	}
	return true, nil
}

func (t *Toggler) checkSubject(ctx context.Context, actor string, rel models.Relation, subjectID string) error {
	switch rel {
	case models.RelationLikes:
		_, err := t.store.GetPost(ctx, subjectID)
		return err
	case models.RelationSubscriptions:
		post, err := t.store.GetPost(ctx, subjectID)
		if err != nil {
			return err
		}
		if post.AuthorID == actor {
			return apperr.Invalid("authors are always subscribed to their own posts")
		}
	case models.RelationCommentLikes:
		_, err := t.store.GetComment(ctx, subjectID)
		return err
	case models.RelationFollows:
		if subjectID == actor {
			return apperr.Invalid("cannot follow yourself")
		}
		_, err := t.store.GetUser(ctx, subjectID)
		return err
	}
	return nil
}
