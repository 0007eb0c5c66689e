package quota

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/creastat/assistant"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreConcurrentConsume(t *testing.T) {
	addr := os.Getenv("ASSISTANT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ASSISTANT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	store := NewRedisStore(client, 50)
	defer store.Close()

	slug := "9" + uuid.NewString()[:8]
	defer client.Del(ctx, ledgerKeyPrefix+slug)

	// Separate governors stand in for separate processes.
	a, b := NewGovernor(store), NewGovernor(store)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 30; i++ {
		g := a
		if i%2 == 0 {
			g = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.CheckAndConsume(ctx, slug, assistant.TierStudent, FeatureImage, 1)
			if err == nil && d.OK {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, granted)

	ledger, err := store.Load(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, int64(20), ledger.Used(DayKey(time.Now()), FeatureImage))
}
