package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for ledgers
	ledgerKeyPrefix = "quota:"
	// Default number of optimistic transaction attempts
	defaultRedisRetries = 10
)

// RedisStore keeps each tenant ledger as a JSON document and updates it with
// WATCH/MULTI/EXEC so concurrent processes cannot lose increments.
type RedisStore struct {
	client  *redis.Client
	retries int
}

// NewRedisStore creates a Redis-backed ledger store.
func NewRedisStore(client *redis.Client, retries int) *RedisStore {
	if retries <= 0 {
		retries = defaultRedisRetries
	}
	return &RedisStore{client: client, retries: retries}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, slug string) (Ledger, error) {
	return s.get(ctx, s.client, s.key(slug))
}

// Update implements Store. Conflicting writers are retried.
func (s *RedisStore) Update(ctx context.Context, slug string, mutate func(Ledger) bool) error {
	key := s.key(slug)

	txf := func(tx *redis.Tx) error {
		ledger, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if !mutate(ledger) {
			return nil
		}

		val, err := json.Marshal(ledger)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("quota ledger %s: too many concurrent updates", slug)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, c getter, key string) (Ledger, error) {
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ledger{}, nil
	}
	if err != nil {
		return nil, err
	}

	ledger := Ledger{}
	if err := json.Unmarshal(val, &ledger); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", key, err)
	}
	return ledger, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) key(slug string) string {
	return ledgerKeyPrefix + slug
}
