package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/creastat/assistant"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for conversation lists
const conversationKeyPrefix = "conversation:"

// RedisStore keeps each log as a Redis list of JSON entries. Appends use
// RPUSH and updates use LSET, so no write rewrites the whole log.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-based conversation store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, slug string) ([]assistant.Exchange, error) {
	vals, err := s.client.LRange(ctx, s.key(slug), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]assistant.Exchange, 0, len(vals))
	for i, v := range vals {
		var e assistant.Exchange
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode exchange %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Append implements Store. RPUSH reports the new length, which fixes the index.
func (s *RedisStore) Append(ctx context.Context, slug string, e assistant.Exchange) (int, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	n, err := s.client.RPush(ctx, s.key(slug), val).Result()
	if err != nil {
		return 0, err
	}
	return int(n) - 1, nil
}

// Replace implements Store.
func (s *RedisStore) Replace(ctx context.Context, slug string, index int, e assistant.Exchange) error {
	if index < 0 {
		return assistant.ErrNotFound
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = s.client.LSet(ctx, s.key(slug), int64(index), val).Err()
	if err != nil && isOutOfRange(err) {
		return assistant.ErrNotFound
	}
	return err
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(slug string) string {
	return conversationKeyPrefix + slug
}

func isOutOfRange(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of range") || strings.Contains(msg, "no such key")
}
