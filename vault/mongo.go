package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// MongoVault is a MongoDB-based implementation of Vault.
// One document per bundle, keyed by the vault path.
type MongoVault struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ Vault = (*MongoVault)(nil)

type mongoEntry struct {
	Path     string            `bson:"_id"`
	Content  []byte            `bson:"content"`
	Metadata map[string]string `bson:"metadata,omitempty"`
	StoredAt time.Time         `bson:"stored_at"`
}

// NewMongoVault creates a new MongoDB-based vault.
func NewMongoVault(cfg MongoConfig, logger *zap.Logger) (*MongoVault, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: mongo URI is empty", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "agentrelay"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "bundles"
	}

	return &MongoVault{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With(zap.String("component", "mongo_vault")),
	}, nil
}

// Store upserts the document for path.
func (v *MongoVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	if path == "" {
		return ErrInvalidInput
	}

	entry := mongoEntry{
		Path:     path,
		Content:  content,
		Metadata: metadata,
		StoredAt: time.Now(),
	}

	_, err := v.collection.ReplaceOne(ctx,
		bson.M{"_id": path},
		entry,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	v.logger.Debug("entry stored", zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// Retrieve reads the content stored under path.
func (v *MongoVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrInvalidInput
	}

	var entry mongoEntry
	err := v.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve entry: %w", err)
	}
	return entry.Content, nil
}

// Ping checks if the backend is healthy.
func (v *MongoVault) Ping(ctx context.Context) error {
	return v.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (v *MongoVault) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return v.client.Disconnect(ctx)
}
