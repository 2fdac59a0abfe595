package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// RedisVault is a Redis-based implementation of Vault.
// Suitable for distributed production deployments.
type RedisVault struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

var _ Vault = (*RedisVault)(nil)

// NewRedisVault creates a new Redis-based vault.
func NewRedisVault(cfg RedisConfig, logger *zap.Logger) (*RedisVault, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentrelay:"
	}

	return &RedisVault{
		client:    client,
		keyPrefix: keyPrefix + "bundle:",
		logger:    logger.With(zap.String("component", "redis_vault")),
	}, nil
}

// NewRedisVaultFromClient wraps an existing client. Used by tests.
func NewRedisVaultFromClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisVault {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "agentrelay:"
	}
	return &RedisVault{
		client:    client,
		keyPrefix: keyPrefix + "bundle:",
		logger:    logger.With(zap.String("component", "redis_vault")),
	}
}

func (v *RedisVault) contentKey(path string) string {
	return v.keyPrefix + path
}

func (v *RedisVault) metaKey(path string) string {
	return v.keyPrefix + path + ":meta"
}

// Store writes content and metadata under path in one pipeline.
func (v *RedisVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	if path == "" {
		return ErrInvalidInput
	}

	pipe := v.client.TxPipeline()
	pipe.Set(ctx, v.contentKey(path), content, 0)
	if len(metadata) > 0 {
		fields := make(map[string]any, len(metadata))
		for k, val := range metadata {
			fields[k] = val
		}
		pipe.HSet(ctx, v.metaKey(path), fields)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	v.logger.Debug("entry stored", zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// Retrieve reads the content stored under path.
func (v *RedisVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrInvalidInput
	}

	content, err := v.client.Get(ctx, v.contentKey(path)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve entry: %w", err)
	}
	return content, nil
}

// Ping checks if the backend is healthy.
func (v *RedisVault) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (v *RedisVault) Close() error {
	return v.client.Close()
}
