package conversation

import (
	"context"

	"github.com/creastat/assistant"
)

// StoreType represents the type of conversation store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeObject StoreType = "object"
)

// NewStore creates a Store based on the given type.
// Redis requires WithRedisClient, SQLite requires WithDB and the object
// driver requires WithObjects.
func NewStore(ctx context.Context, storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, assistant.ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient), nil

	case StoreTypeSQLite:
		if config.db == nil {
			return nil, assistant.ErrInvalidConfig
		}
		return NewSQLiteStore(ctx, config.db)

	case StoreTypeObject:
		if config.objects == nil {
			return nil, assistant.ErrInvalidConfig
		}
		return NewObjectStore(config.objects), nil

	default:
		return nil, assistant.ErrInvalidStoreType
	}
}
