package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// edgeDocument is a toggle row. The _id is subject:user so the primary key
// rejects duplicates.
type edgeDocument struct {
	ID        string    `bson:"_id"`
	SubjectID string    `bson:"subject_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func edgeDocumentID(subjectID, userID string) string {
	return subjectID + ":" + userID
}

// splitEdgeDocumentID reverses edgeDocumentID. User ids never contain ':'
// so the last separator splits the key.
func splitEdgeDocumentID(id string) (string, string, bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// MongoStore implements Store on MongoDB. Each relation is a collection
// named after it.
type MongoStore struct {
	db  *mongo.Database
	now func() time.Time
}

var _ Store = (*MongoStore)(nil)

// OpenMongo connects to uri and pings the primary.
func OpenMongo(ctx context.Context, uri string, log *zap.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	log.Info("Successfully connected to MongoDB")
	return client, nil
}

// NewMongoStore creates a MongoStore over db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, now: time.Now}
}

func (s *MongoStore) coll(rel models.Relation) *mongo.Collection {
	return s.db.Collection(string(rel))
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[models.Relation][]mongo.IndexModel{
		models.RelationUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		models.RelationPosts: {
			{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		models.RelationComments: {
			{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		models.RelationNotifications: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "post_id", Value: 1}}},
		},
	}
	for _, rel := range models.EdgeRelations {
		specs[rel] = []mongo.IndexModel{
			{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		}
	}
	for rel, indexes := range specs {
		if _, err := s.coll(rel).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to index %s: %w", rel, err)
		}
	}
	return nil
}

// EnablePreImages turns on change stream pre-images for notifications so a
// deleted notification still names its recipient. It needs MongoDB 6.0.
func (s *MongoStore) EnablePreImages(ctx context.Context) error {
	cmd := bson.D{
		{Key: "collMod", Value: string(models.RelationNotifications)},
		{Key: "changeStreamPreAndPostImages", Value: bson.M{"enabled": true}},
	}
	if err := s.db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to enable pre-images on %s: %w", models.RelationNotifications, err)
	}
	return nil
}

// translateMongo maps driver errors onto the apperr taxonomy.
func translateMongo(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.NotFound(kind, id)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s %q: %w", kind, id, apperr.ErrConflict)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return apperr.Transient(err)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("RetryableWriteError") {
		return apperr.Transient(err)
	}
	return err
}

// === Users ===

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = s.now().UTC()
	_, err := s.coll(models.RelationUsers).InsertOne(ctx, user)
	return translateMongo(err, "user", user.ID)
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.coll(models.RelationUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translateMongo(err, "user", id)
	}
	return &user, nil
}

func (s *MongoStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	return s.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *MongoStore) GetUsersByUsername(ctx context.Context, usernames []string) ([]models.User, error) {
	return s.findUsers(ctx, bson.M{"username": bson.M{"$in": usernames}})
}

func (s *MongoStore) findUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	users := []models.User{}
	cursor, err := s.coll(models.RelationUsers).Find(ctx, filter)
	if err != nil {
		return nil, translateMongo(err, "user", "")
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &users); err != nil {
		return nil, translateMongo(err, "user", "")
	}
	return users, nil
}

// === Posts ===

func (s *MongoStore) CreatePost(ctx context.Context, post *models.Post) error {
	post.ID = uuid.NewString()
	post.CreatedAt = s.now().UTC()
	post.UpdatedAt = post.CreatedAt
	post.LikeCount, post.CommentCount = 0, 0
	_, err := s.coll(models.RelationPosts).InsertOne(ctx, post)
	return translateMongo(err, "post", post.ID)
}

func (s *MongoStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := s.coll(models.RelationPosts).FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		return nil, translateMongo(err, "post", id)
	}
	if err := s.fillCounts(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *MongoStore) ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error) {
	filter := bson.M{}
	if q.AuthorID != "" {
		filter["author_id"] = q.AuthorID
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	posts := []models.Post{}
	cursor, err := s.coll(models.RelationPosts).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, translateMongo(err, "post", "")
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &posts); err != nil {
		return nil, translateMongo(err, "post", "")
	}
	for i := range posts {
		if err := s.fillCounts(ctx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *MongoStore) fillCounts(ctx context.Context, post *models.Post) error {
	likes, err := s.CountEdges(ctx, models.RelationLikes, post.ID)
	if err != nil {
		return err
	}
	comments, err := s.CountComments(ctx, post.ID)
	if err != nil {
		return err
	}
	post.LikeCount, post.CommentCount = likes, comments
	return nil
}

func (s *MongoStore) UpdatePostContent(ctx context.Context, id, content string) (*models.Post, error) {
	update := bson.M{"$set": bson.M{"content": content, "updated_at": s.now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.Post
	err := s.coll(models.RelationPosts).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&post)
	if err != nil {
		return nil, translateMongo(err, "post", id)
	}
	if err := s.fillCounts(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes the post first so concurrent inserts against it fail
// their existence check, then sweeps the dependent rows. The notifications
// returned are the ones found just before the sweep.
func (s *MongoStore) DeletePost(ctx context.Context, id string) (*models.Post, []models.Notification, error) {
	var post models.Post
	if err := s.coll(models.RelationPosts).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		return nil, nil, translateMongo(err, "post", id)
	}

	var commentIDs []string
	cursor, err := s.coll(models.RelationComments).Find(ctx, bson.M{"post_id": id},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, nil, translateMongo(err, "comment", "")
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err = cursor.All(ctx, &ids); err != nil {
		return nil, nil, translateMongo(err, "comment", "")
	}
	for _, c := range ids {
		commentIDs = append(commentIDs, c.ID)
	}

	sweeps := []struct {
		rel    models.Relation
		filter bson.M
	}{
		{models.RelationLikes, bson.M{"subject_id": id}},
		{models.RelationSubscriptions, bson.M{"subject_id": id}},
		{models.RelationNotifications, bson.M{"post_id": id}},
		{models.RelationComments, bson.M{"post_id": id}},
	}
	if len(commentIDs) > 0 {
		sweeps = append(sweeps, struct {
			rel    models.Relation
			filter bson.M
		}{models.RelationCommentLikes, bson.M{"subject_id": bson.M{"$in": commentIDs}}})
	}
	removed, err := s.ListNotifications(ctx, NotificationQuery{PostID: id})
	if err != nil {
		return nil, nil, err
	}
	for _, sweep := range sweeps {
		if _, err := s.coll(sweep.rel).DeleteMany(ctx, sweep.filter); err != nil {
			return nil, nil, translateMongo(err, string(sweep.rel), id)
		}
	}
	return &post, removed, nil
}

// === Comments ===

func (s *MongoStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	n, err := s.coll(models.RelationPosts).CountDocuments(ctx, bson.M{"_id": comment.PostID})
	if err != nil {
		return translateMongo(err, "post", comment.PostID)
	}
	if n == 0 {
		return apperr.NotFound("post", comment.PostID)
	}
	if comment.ParentID != nil {
		n, err = s.coll(models.RelationComments).CountDocuments(ctx,
			bson.M{"_id": *comment.ParentID, "post_id": comment.PostID})
		if err != nil {
			return translateMongo(err, "comment", *comment.ParentID)
		}
		if n == 0 {
			return apperr.NotFound("comment", *comment.ParentID)
		}
	}

	comment.ID = uuid.NewString()
	comment.CreatedAt = s.now().UTC()
	_, err = s.coll(models.RelationComments).InsertOne(ctx, comment)
	return translateMongo(err, "comment", comment.ID)
}

func (s *MongoStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.coll(models.RelationComments).FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		return nil, translateMongo(err, "comment", id)
	}
	return &comment, nil
}

func (s *MongoStore) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	comments := []models.Comment{}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll(models.RelationComments).Find(ctx, bson.M{"post_id": postID}, findOptions)
	if err != nil {
		return nil, translateMongo(err, "comment", "")
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &comments); err != nil {
		return nil, translateMongo(err, "comment", "")
	}
	return comments, nil
}

func (s *MongoStore) CountComments(ctx context.Context, postID string) (int64, error) {
	n, err := s.coll(models.RelationComments).CountDocuments(ctx, bson.M{"post_id": postID})
	return n, translateMongo(err, "comment", "")
}

// === Edges ===

func (s *MongoStore) InsertEdge(ctx context.Context, edge *models.Edge) error {
	if !edge.Relation.IsEdge() {
		return apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", edge.Relation))
	}
	edge.CreatedAt = s.now().UTC()
	doc := edgeDocument{
		ID:        edgeDocumentID(edge.SubjectID, edge.UserID),
		SubjectID: edge.SubjectID,
		UserID:    edge.UserID,
		CreatedAt: edge.CreatedAt,
	}
	_, err := s.coll(edge.Relation).InsertOne(ctx, doc)
	return translateMongo(err, string(edge.Relation), doc.ID)
}

func (s *MongoStore) DeleteEdge(ctx context.Context, edge models.Edge) (int64, error) {
	if !edge.Relation.IsEdge() {
		return 0, apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", edge.Relation))
	}
	res, err := s.coll(edge.Relation).DeleteOne(ctx, bson.M{"_id": edgeDocumentID(edge.SubjectID, edge.UserID)})
	if err != nil {
		return 0, translateMongo(err, string(edge.Relation), "")
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) HasEdge(ctx context.Context, edge models.Edge) (bool, error) {
	if !edge.Relation.IsEdge() {
		return false, apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", edge.Relation))
	}
	n, err := s.coll(edge.Relation).CountDocuments(ctx,
		bson.M{"_id": edgeDocumentID(edge.SubjectID, edge.UserID)}, options.Count().SetLimit(1))
	if err != nil {
		return false, translateMongo(err, string(edge.Relation), "")
	}
	return n > 0, nil
}

func (s *MongoStore) CountEdges(ctx context.Context, rel models.Relation, subjectID string) (int64, error) {
	if !rel.IsEdge() {
		return 0, apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", rel))
	}
	n, err := s.coll(rel).CountDocuments(ctx, bson.M{"subject_id": subjectID})
	return n, translateMongo(err, string(rel), "")
}

func (s *MongoStore) ListEdgeUsers(ctx context.Context, rel models.Relation, subjectID string) ([]string, error) {
	if !rel.IsEdge() {
		return nil, apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", rel))
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.coll(rel).Find(ctx, bson.M{"subject_id": subjectID}, findOptions)
	if err != nil {
		return nil, translateMongo(err, string(rel), "")
	}
	var docs []edgeDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, translateMongo(err, string(rel), "")
	}
	users := make([]string, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.UserID)
	}
	return users, nil
}

// === Notifications ===

func notificationFilter(q NotificationQuery) bson.M {
	filter := bson.M{}
	if q.RecipientID != "" {
		filter["recipient_id"] = q.RecipientID
	}
	if q.PostID != "" {
		filter["post_id"] = q.PostID
	}
	if q.UnreadOnly {
		filter["is_read"] = false
	}
	if len(q.Types) > 0 {
		filter["type"] = bson.M{"$in": q.Types}
	}
	if len(q.IDs) > 0 {
		filter["_id"] = bson.M{"$in": q.IDs}
	}
	return filter
}

func (s *MongoStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	_, err := s.coll(models.RelationNotifications).InsertOne(ctx, n)
	return translateMongo(err, "notification", n.ID)
}

func (s *MongoStore) ListNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	notifications := []models.Notification{}
	cursor, err := s.coll(models.RelationNotifications).Find(ctx, notificationFilter(q), findOptions)
	if err != nil {
		return nil, translateMongo(err, "notification", "")
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, translateMongo(err, "notification", "")
	}
	return notifications, nil
}

func (s *MongoStore) CountNotifications(ctx context.Context, q NotificationQuery) (int64, error) {
	n, err := s.coll(models.RelationNotifications).CountDocuments(ctx, notificationFilter(q))
	return n, translateMongo(err, "notification", "")
}

// MarkRead selects the unread matches and flips them with one conditional
// UpdateMany. A row read concurrently by another caller is still reported,
// which is harmless since the flip only ever goes to true.
func (s *MongoStore) MarkRead(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	q.UnreadOnly = true
	q.Limit = 0
	pending, err := s.ListNotifications(ctx, q)
	if err != nil || len(pending) == 0 {
		return pending, err
	}

	ids := make([]string, 0, len(pending))
	for _, n := range pending {
		ids = append(ids, n.ID)
	}
	_, err = s.coll(models.RelationNotifications).UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return nil, translateMongo(err, "notification", "")
	}
	for i := range pending {
		pending[i].IsRead = true
	}
	return pending, nil
}
