package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/countdown/go/internal/countdown"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const currentTimerID = "current"

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// timerDocument is the persisted shape: {startTime, duration, isRunning}.
type timerDocument struct {
	ID        string    `bson:"_id"`
	StartTime time.Time `bson:"startTime"`
	Duration  int64     `bson:"duration"`
	IsRunning bool      `bson:"isRunning"`
}

// MongoStore persists the timer as one document with a fixed _id. Documents
// with any other _id (records from earlier writers) are read when no
// "current" exists and are retired by Replace.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects and pings the deployment at cfg.URI.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "timers"
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(cfg.Timeout).
		SetConnectTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) GetCurrent(ctx context.Context) (*countdown.TimerRecord, error) {
	// String _ids sort before ObjectIds, so "current" wins over a record
	// left by another writer.
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	raw, err := s.collection.FindOne(ctx, bson.M{}, opts).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}

	var doc timerDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", countdown.ErrMalformedRecord, err)
	}
	return newRecord(doc.StartTime, doc.Duration, doc.IsRunning)
}

func (s *MongoStore) Replace(ctx context.Context, r countdown.TimerRecord) error {
	doc := timerDocument{
		ID:        currentTimerID,
		StartTime: r.StartTime.UTC(),
		Duration:  r.DurationMs(),
		IsRunning: r.IsRunning,
	}
	// Retire every other timer document first; readers keyed on "current"
	// see either the old record or the new one.
	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$ne": currentTimerID}}); err != nil {
		return fmt.Errorf("failed to retire timer: %w", err)
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": currentTimerID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to replace timer: %w", err)
	}
	return nil
}

func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear timer: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
