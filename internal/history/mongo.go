package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tickerlab/internal/logging"
)

const (
	sessionsCollection    = "sessions"
	preferencesCollection = "preferences"
	defaultMongoOpTimeout = 10 * time.Second
)

// MongoStore is the durable session backend. Documents are scoped to a
// single owner so several installations can share one database.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	prefs    *mongo.Collection
	ownerID  string
	timeout  time.Duration
}

// MongoOptions configures the durable store connection.
type MongoOptions struct {
	URI      string
	Database string
	OwnerID  string
	Timeout  time.Duration
}

// mongoSessionDoc wraps the shared session document with the owner scope.
type mongoSessionDoc struct {
	OwnerID    string `bson:"owner_id"`
	sessionDoc `bson:",inline"`
}

type preferencesDoc struct {
	OwnerID string            `bson:"owner_id"`
	Prefs   map[string]string `bson:"prefs"`
}

// NewMongoStore connects to MongoDB, verifies the server is reachable and
// ensures the indexes the store relies on.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if opts.OwnerID == "" {
		return nil, errors.New("owner id is required")
	}
	if opts.Database == "" {
		opts.Database = "tickerlab"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultMongoOpTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	db := client.Database(opts.Database)
	s := &MongoStore{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		prefs:    db.Collection(preferencesCollection),
		ownerID:  opts.OwnerID,
		timeout:  opts.Timeout,
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logging.Store("[Mongo] Connected: database=%s owner=%s", opts.Database, opts.OwnerID)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	sessionIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "session_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, sessionIndex); err != nil {
		return err
	}
	listIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "updated_at", Value: -1},
		},
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, listIndex); err != nil {
		return err
	}
	prefsIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := s.prefs.Indexes().CreateOne(ctx, prefsIndex)
	return err
}

// Save upserts the session document keyed by (owner, session id). The
// document schema writes every optional field explicitly so a missing
// verdict round-trips as an empty value rather than an absent key.
func (s *MongoStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	logging.StoreDebug("[Mongo] Save: id=%s subject=%s", sess.ID, sess.SubjectLabel)

	doc := mongoSessionDoc{OwnerID: s.ownerID, sessionDoc: docFromSession(sess)}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner_id": s.ownerID, "session_id": sess.ID}
	update := bson.M{"$set": doc}
	if _, err := s.sessions.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		logging.StoreError("[Mongo] Save failed: id=%s error=%v", sess.ID, err)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// List returns the owner's sessions, most recently updated first.
func (s *MongoStore) List(ctx context.Context) ([]*Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner_id": s.ownerID}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		logging.StoreError("[Mongo] List failed: error=%v", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []*Session
	for cur.Next(ctx) {
		var doc mongoSessionDoc
		if err := cur.Decode(&doc); err != nil {
			logging.StoreError("[Mongo] List decode failed: error=%v", err)
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		out = append(out, doc.toSession())
	}
	if err := cur.Err(); err != nil {
		logging.StoreError("[Mongo] List cursor failed: error=%v", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	logging.StoreDebug("[Mongo] List: returned %d sessions", len(out))
	return out, nil
}

// Delete removes one session. Deleting an unknown id is an error so the
// caller can roll its optimistic removal back.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner_id": s.ownerID, "session_id": id}
	res, err := s.sessions.DeleteOne(ctx, filter)
	if err != nil {
		logging.StoreError("[Mongo] Delete failed: id=%s error=%v", id, err)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	logging.Store("[Mongo] Deleted session: id=%s", id)
	return nil
}

// SetPreference stores a single key in the owner's preference map.
func (s *MongoStore) SetPreference(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("preference key is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner_id": s.ownerID}
	update := bson.M{
		"$set":         bson.M{"prefs." + key: value},
		"$setOnInsert": bson.M{"owner_id": s.ownerID},
	}
	if _, err := s.prefs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		logging.StoreError("[Mongo] SetPreference failed: key=%s error=%v", key, err)
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// Preferences returns the owner's preference map, empty when none exist.
func (s *MongoStore) Preferences(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc preferencesDoc
	err := s.prefs.FindOne(ctx, bson.M{"owner_id": s.ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]string{}, nil
	}
	if err != nil {
		logging.StoreError("[Mongo] Preferences failed: error=%v", err)
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if doc.Prefs == nil {
		doc.Prefs = map[string]string{}
	}
	return doc.Prefs, nil
}

// Close disconnects from the server.
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
