// Package inmemory is a map-backed Store used by tests and local runs.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/google/uuid"
)

type edgeKey struct {
	rel     models.Relation
	subject string
	user    string
}

// Store implements repositories.Store in memory.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	users       map[string]*models.User
	usernames   map[string]string
	posts       map[string]*models.Post
	comments    map[string]*models.Comment
	edges       map[edgeKey]models.Edge
	edgeOrder   []edgeKey
	notifs      map[string]*models.Notification
	notifOrder  []string
	commentSeq  map[string]int
	nextComment int
}

var _ repositories.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		users:      make(map[string]*models.User),
		usernames:  make(map[string]string),
		posts:      make(map[string]*models.Post),
		comments:   make(map[string]*models.Comment),
		edges:      make(map[edgeKey]models.Edge),
		notifs:     make(map[string]*models.Notification),
		commentSeq: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// === Users ===

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %q: %w", user.ID, apperr.ErrConflict)
	}
	if _, ok := s.usernames[user.Username]; ok {
		return fmt.Errorf("username %q: %w", user.Username, apperr.ErrConflict)
	}
	user.CreatedAt = s.now().UTC()
	cp := *user
	s.users[user.ID] = &cp
	s.usernames[user.Username] = user.ID
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) GetUsersByUsername(ctx context.Context, usernames []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(usernames))
	for _, name := range usernames {
		if id, ok := s.usernames[name]; ok {
			out = append(out, *s.users[id])
		}
	}
	return out, nil
}

// === Posts ===

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.NewString()
	post.CreatedAt = s.now().UTC()
	post.UpdatedAt = post.CreatedAt
	post.LikeCount, post.CommentCount = 0, 0
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, apperr.NotFound("post", id)
	}
	out := s.withCounts(*p)
	return &out, nil
}

func (s *Store) ListPosts(ctx context.Context, q repositories.PostQuery) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if q.AuthorID != "" && p.AuthorID != q.AuthorID {
			continue
		}
		all = append(all, s.withCounts(*p))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := q.Offset
	if start >= len(all) {
		return []models.Post{}, nil
	}
	end := len(all)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return all[start:end], nil
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, apperr.NotFound("post", id)
	}
	p.Content = content
	p.UpdatedAt = s.now().UTC()
	out := s.withCounts(*p)
	return &out, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) (*models.Post, []models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, nil, apperr.NotFound("post", id)
	}

	commentIDs := make(map[string]bool)
	for cid, c := range s.comments {
		if c.PostID == id {
			commentIDs[cid] = true
			delete(s.comments, cid)
		}
	}

	kept := s.edgeOrder[:0]
	for _, k := range s.edgeOrder {
		dependent := (k.rel == models.RelationLikes || k.rel == models.RelationSubscriptions) && k.subject == id
		dependent = dependent || (k.rel == models.RelationCommentLikes && commentIDs[k.subject])
		if dependent {
			delete(s.edges, k)
			continue
		}
		kept = append(kept, k)
	}
	s.edgeOrder = kept

	var removed []models.Notification
	keptNotifs := s.notifOrder[:0]
	for _, nid := range s.notifOrder {
		n := s.notifs[nid]
		if n.PostID != nil && *n.PostID == id {
			removed = append(removed, *n)
			delete(s.notifs, nid)
			continue
		}
		keptNotifs = append(keptNotifs, nid)
	}
	s.notifOrder = keptNotifs

	delete(s.posts, id)
	return p, removed, nil
}

func (s *Store) withCounts(p models.Post) models.Post {
	p.LikeCount = s.countEdges(models.RelationLikes, p.ID)
	p.CommentCount = s.countComments(p.ID)
	return p
}

// === Comments ===

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return apperr.NotFound("post", comment.PostID)
	}
	if comment.ParentID != nil {
		parent, ok := s.comments[*comment.ParentID]
		if !ok || parent.PostID != comment.PostID {
			return apperr.NotFound("comment", *comment.ParentID)
		}
	}

	comment.ID = uuid.NewString()
	comment.CreatedAt = s.now().UTC()
	cp := *comment
	s.comments[comment.ID] = &cp
	s.nextComment++
	s.commentSeq[comment.ID] = s.nextComment
	return nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, apperr.NotFound("comment", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.commentSeq[out[i].ID] < s.commentSeq[out[j].ID]
	})
	return out, nil
}

func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countComments(postID), nil
}

func (s *Store) countComments(postID string) int64 {
	var n int64
	for _, c := range s.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n
}

// === Edges ===

func (s *Store) InsertEdge(ctx context.Context, edge *models.Edge) error {
	if !edge.Relation.IsEdge() {
		return apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", edge.Relation))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{edge.Relation, edge.SubjectID, edge.UserID}
	if _, ok := s.edges[k]; ok {
		return fmt.Errorf("%s (%s, %s): %w", edge.Relation, edge.SubjectID, edge.UserID, apperr.ErrConflict)
	}
	edge.CreatedAt = s.now().UTC()
	s.edges[k] = *edge
	s.edgeOrder = append(s.edgeOrder, k)
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, edge models.Edge) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{edge.Relation, edge.SubjectID, edge.UserID}
	if _, ok := s.edges[k]; !ok {
		return 0, nil
	}
	delete(s.edges, k)
	for i, existing := range s.edgeOrder {
		if existing == k {
			s.edgeOrder = append(s.edgeOrder[:i], s.edgeOrder[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (s *Store) HasEdge(ctx context.Context, edge models.Edge) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.edges[edgeKey{edge.Relation, edge.SubjectID, edge.UserID}]
	return ok, nil
}

func (s *Store) CountEdges(ctx context.Context, rel models.Relation, subjectID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countEdges(rel, subjectID), nil
}

func (s *Store) countEdges(rel models.Relation, subjectID string) int64 {
	var n int64
	for k := range s.edges {
		if k.rel == rel && k.subject == subjectID {
			n++
		}
	}
	return n
}

func (s *Store) ListEdgeUsers(ctx context.Context, rel models.Relation, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0)
	for _, k := range s.edgeOrder {
		if k.rel == rel && k.subject == subjectID {
			out = append(out, k.user)
		}
	}
	return out, nil
}

// === Notifications ===

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, ok := s.notifs[n.ID]; ok {
		return fmt.Errorf("notification %q: %w", n.ID, apperr.ErrConflict)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	cp := *n
	s.notifs[n.ID] = &cp
	s.notifOrder = append(s.notifOrder, n.ID)
	return nil
}

// newestFirst returns matching notifications ordered by created_at desc,
// later inserts first on ties.
func (s *Store) newestFirst(q repositories.NotificationQuery) []models.Notification {
	out := make([]models.Notification, 0)
	for i := len(s.notifOrder) - 1; i >= 0; i-- {
		n := s.notifs[s.notifOrder[i]]
		if q.Match(*n) {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ListNotifications(ctx context.Context, q repositories.NotificationQuery) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.newestFirst(q)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, q repositories.NotificationQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.newestFirst(q))), nil
}

func (s *Store) MarkRead(ctx context.Context, q repositories.NotificationQuery) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.UnreadOnly = true
	changed := make([]models.Notification, 0)
	for _, id := range s.notifOrder {
		n := s.notifs[id]
		if q.Match(*n) {
			n.IsRead = true
			changed = append(changed, *n)
		}
	}
	return changed, nil
}
