// Package vault provides the durable key-value storage boundary used for
// persisted context bundles, with memory, file, redis and mongo backends.
//
// Supported backends:
// - Memory: for development and testing (default)
// - File: for single-node production deployments
// - Redis: for distributed production deployments
// - Mongo: for document-store deployments
package vault

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("vault: not found")
	ErrClosed       = errors.New("vault: closed")
	ErrInvalidInput = errors.New("vault: invalid input")
)

// BackendType represents the type of vault backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendFile   BackendType = "file"
	BackendRedis  BackendType = "redis"
	BackendMongo  BackendType = "mongo"
)

// Vault is the durable key-value store for serialized context bundles.
// Paths are slash-separated hierarchical keys, e.g.
// "handoffs/{sessionId}/{handoffId}".
type Vault interface {
	// Store writes content under path. Metadata travels with the entry but
	// is not part of the content round-trip.
	Store(ctx context.Context, path string, content []byte, metadata map[string]string) error

	// Retrieve reads the content stored under path. Returns ErrNotFound if
	// no entry exists.
	Retrieve(ctx context.Context, path string) ([]byte, error)

	// Ping checks if the backend is healthy.
	Ping(ctx context.Context) error

	// Close closes the backend and releases resources.
	Close() error
}

// RedisConfig contains redis-specific configuration.
type RedisConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TLS enables a hardened TLS connection to the server
	TLS bool `json:"tls" yaml:"tls"`
}

// MongoConfig contains mongo-specific configuration.
type MongoConfig struct {
	// URI is the MongoDB connection string
	URI string `json:"uri" yaml:"uri"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// Collection is the collection holding bundle documents
	Collection string `json:"collection" yaml:"collection"`

	// ConnectTimeout bounds the initial connection attempt
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// Config is the configuration for all vault backends.
type Config struct {
	// Backend selects the storage backend
	Backend BackendType `json:"backend" yaml:"backend"`

	// BaseDir is the base directory for the file backend
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Backend is "redis")
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Mongo configuration (only used when Backend is "mongo")
	Mongo MongoConfig `json:"mongo" yaml:"mongo"`
}

// DefaultConfig returns the default vault configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		BaseDir: "./data/vault",
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentrelay:",
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "agentrelay",
			Collection:     "bundles",
			ConnectTimeout: 10 * time.Second,
		},
	}
}
