package vault

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a new Vault based on the configuration.
func New(cfg Config, logger *zap.Logger) (Vault, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryVault(), nil
	case BackendFile:
		return NewFileVault(cfg.BaseDir, logger)
	case BackendRedis:
		return NewRedisVault(cfg.Redis, logger)
	case BackendMongo:
		return NewMongoVault(cfg.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported vault backend: %s", cfg.Backend)
	}
}

// MustNew creates a new Vault or panics on error.
//
// WARNING: This function should ONLY be used during application
// initialization (e.g., in main() or init()). For runtime vault creation,
// use New instead.
func MustNew(cfg Config, logger *zap.Logger) Vault {
	v, err := New(cfg, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create vault: %v", err))
	}
	return v
}
