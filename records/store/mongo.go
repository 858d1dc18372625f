package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	docconfig "github.com/docdraft/docdraft/config"
	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/records"
)

// MongoStore persists document records in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns the default MongoDB configuration.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "docdraft",
		Collection: "document_records",
	}
}

// NewMongoStore connects to MongoDB and prepares the records
// collection.
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}
	if err := docconfig.ValidateMongoDBConfig(config.URI, config.Database, config.Collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := s.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Create inserts a new record. Records are immutable.
func (s *MongoStore) Create(ctx context.Context, record *records.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: record %s", kberrors.ErrAlreadyExists, record.ID)
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// Find returns the record only if it belongs to userID.
func (s *MongoStore) Find(ctx context.Context, id, userID string) (*records.Record, error) {
	filter := bson.M{"_id": id, "user_id": userID}

	var record records.Record
	if err := s.collection.FindOne(ctx, filter).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: record %s", kberrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return &record, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
