package quota

import (
	"context"
	"database/sql"

	"github.com/creastat/assistant"
	"github.com/redis/go-redis/v9"
)

// Store persists tenant ledgers.
type Store interface {
	// Load returns the tenant's ledger, or an empty ledger when none exists.
	Load(ctx context.Context, slug string) (Ledger, error)

	// Update loads the ledger, applies mutate and persists the result when
	// mutate returns true. The read-modify-write is atomic per tenant.
	Update(ctx context.Context, slug string, mutate func(Ledger) bool) error

	// Close releases resources held by the store.
	Close() error
}

// StoreType represents the type of ledger store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// StoreOption is a functional option for configuring a ledger store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient  *redis.Client
	redisRetries int
	db           *sql.DB
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisRetries bounds optimistic transaction retries.
func WithRedisRetries(n int) StoreOption {
	return func(c *storeConfig) {
		c.redisRetries = n
	}
}

// WithDB sets the database handle for the SQLite store.
func WithDB(db *sql.DB) StoreOption {
	return func(c *storeConfig) {
		c.db = db
	}
}

// NewStore creates a ledger store of the given type.
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
		return NewRedisStore(config.redisClient, config.redisRetries), nil

	case StoreTypeSQLite:
		if config.db == nil {
			return nil, assistant.ErrInvalidConfig
		}
		return NewSQLiteStore(ctx, config.db)

	default:
		return nil, assistant.ErrInvalidStoreType
	}
}
