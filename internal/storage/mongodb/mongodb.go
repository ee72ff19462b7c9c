package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-httpservice/internal/storage"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// DefaultCollection holds lifecycle event records when none is configured
const DefaultCollection = "lifecycle_events"

// Store implements MongoDB event storage
type Store struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	cfg        *config.MongoDBConfig
}

// NewStore connects to MongoDB and prepares the event collection
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}
	database := client.Database(cfg.Database)

	s := &Store{
		client:     client,
		database:   database,
		collection: database.Collection(name),
		cfg:        cfg,
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "event", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// Append implements storage.EventStore
func (s *Store) Append(ctx context.Context, rec *storage.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record requires an id", storage.ErrInvalidInput)
	}

	_, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: duplicate record %s", storage.ErrInvalidInput, rec.ID)
		}
		return fmt.Errorf("%w: failed to insert record: %w", storage.ErrDatabase, err)
	}
	return nil
}

// List implements storage.EventStore
func (s *Store) List(ctx context.Context, limit int) ([]*storage.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list records: %w", storage.ErrDatabase, err)
	}
	defer cursor.Close(ctx)

	var records []*storage.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to decode records: %w", storage.ErrDatabase, err)
	}
	if records == nil {
		records = []*storage.Record{}
	}
	return records, nil
}

// Ping implements storage.EventStore
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close implements storage.EventStore
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}
