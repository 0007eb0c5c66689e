package conversation

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a conversation store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for conversation stores.
type storeConfig struct {
	redisClient *redis.Client
	db          *sql.DB
	objects     Objects
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithDB sets the database handle for the SQLite store.
func WithDB(db *sql.DB) StoreOption {
	return func(c *storeConfig) {
		c.db = db
	}
}

// WithObjects sets the object store for the document store.
func WithObjects(o Objects) StoreOption {
	return func(c *storeConfig) {
		c.objects = o
	}
}
