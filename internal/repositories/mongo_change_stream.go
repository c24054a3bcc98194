package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Deliverer hands changes that did not originate in this process to local
// subscribers.
type Deliverer interface {
	Deliver(op changefeed.Op, row models.Row) changefeed.Event
}

type changeDocument struct {
	OperationType string `bson:"operationType"`
	Namespace     struct {
		Collection string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.Raw `bson:"fullDocument"`
	FullDocumentBeforeChange bson.Raw `bson:"fullDocumentBeforeChange"`
}

// MongoChangeStream turns a database-wide change stream into feed events.
// Every instance watches the stream itself, so events go to Deliver and are
// never relayed.
type MongoChangeStream struct {
	db      *mongo.Database
	target  Deliverer
	logger  *zap.Logger
	backoff time.Duration
}

// NewMongoChangeStream creates a change stream source over db.
func NewMongoChangeStream(db *mongo.Database, target Deliverer, logger *zap.Logger) *MongoChangeStream {
	return &MongoChangeStream{
		db:      db,
		target:  target,
		logger:  logger.With(zap.String("component", "mongo_change_stream")),
		backoff: time.Second,
	}
}

// Run watches until ctx is done, resuming after the last seen token when
// the stream breaks.
func (m *MongoChangeStream) Run(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
	}
	var resume bson.Raw
	for {
		opts := options.ChangeStream().
			SetFullDocument(options.UpdateLookup).
			SetFullDocumentBeforeChange(options.WhenAvailable)
		if resume != nil {
			opts.SetResumeAfter(resume)
		}
		stream, err := m.db.Watch(ctx, pipeline, opts)
		if err == nil {
			resume, err = m.drain(ctx, stream, resume)
		}
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn("change stream interrupted", zap.Error(err), zap.Duration("backoff", m.backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.backoff):
		}
	}
}

func (m *MongoChangeStream) drain(ctx context.Context, stream *mongo.ChangeStream, resume bson.Raw) (bson.Raw, error) {
	defer stream.Close(context.Background())
	for stream.Next(ctx) {
		resume = stream.ResumeToken()
		var doc changeDocument
		if err := stream.Decode(&doc); err != nil {
			m.logger.Warn("drop undecodable change", zap.Error(err))
			continue
		}
		op, row, err := decodeChange(doc)
		if err != nil {
			m.logger.Debug("skip change", zap.String("collection", doc.Namespace.Collection), zap.Error(err))
			continue
		}
		m.target.Deliver(op, row)
	}
	if err := stream.Err(); err != nil {
		return resume, err
	}
	return resume, errors.New("change stream closed")
}

var errNoDocument = errors.New("change has no document")

func decodeChange(doc changeDocument) (changefeed.Op, models.Row, error) {
	rel := models.Relation(doc.Namespace.Collection)

	var op changefeed.Op
	switch doc.OperationType {
	case "insert":
		op = changefeed.OpInsert
	case "update", "replace":
		op = changefeed.OpUpdate
	case "delete":
		if len(doc.FullDocumentBeforeChange) > 0 {
			row, err := decodeDocument(rel, doc.FullDocumentBeforeChange)
			return changefeed.OpDelete, row, err
		}
		row, err := keyRow(rel, doc.DocumentKey.ID)
		return changefeed.OpDelete, row, err
	default:
		return "", nil, fmt.Errorf("unsupported operation %q", doc.OperationType)
	}
	if len(doc.FullDocument) == 0 {
		return "", nil, errNoDocument
	}
	row, err := decodeDocument(rel, doc.FullDocument)
	return op, row, err
}

// keyRow rebuilds as much of a deleted row as its _id carries. Without a
// pre-image a notification loses its recipient, so recipient-filtered
// subscribers never see it.
func keyRow(rel models.Relation, id string) (models.Row, error) {
	switch {
	case rel.IsEdge():
		subject, user, ok := splitEdgeDocumentID(id)
		if !ok {
			return nil, fmt.Errorf("malformed edge id %q", id)
		}
		return models.Edge{Relation: rel, SubjectID: subject, UserID: user}, nil
	case rel == models.RelationPosts:
		return models.Post{ID: id}, nil
	case rel == models.RelationComments:
		return models.Comment{ID: id}, nil
	case rel == models.RelationNotifications:
		return models.Notification{ID: id}, nil
	case rel == models.RelationUsers:
		return models.User{ID: id}, nil
	}
	return nil, fmt.Errorf("unknown relation %q", rel)
}

func decodeDocument(rel models.Relation, raw bson.Raw) (models.Row, error) {
	switch {
	case rel.IsEdge():
		var d edgeDocument
		if err := bson.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return models.Edge{Relation: rel, SubjectID: d.SubjectID, UserID: d.UserID, CreatedAt: d.CreatedAt}, nil
	case rel == models.RelationPosts:
		var p models.Post
		err := bson.Unmarshal(raw, &p)
		return p, err
	case rel == models.RelationComments:
		var c models.Comment
		err := bson.Unmarshal(raw, &c)
		return c, err
	case rel == models.RelationNotifications:
		var n models.Notification
		err := bson.Unmarshal(raw, &n)
		return n, err
	case rel == models.RelationUsers:
		var u models.User
		err := bson.Unmarshal(raw, &u)
		return u, err
	}
	return nil, fmt.Errorf("unknown relation %q", rel)
}
