package quota

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	store, err := NewStore(ctx, StoreTypeSQLite, WithDB(db))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestCheckAndConsumeExhaustsAllowance(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
			g := NewGovernor(store, WithClock(clock.Now))

			for i := 1; i <= 5; i++ {
				d, err := g.CheckAndConsume(ctx, "100", assistant.TierFree, FeatureImage, 1)
				require.NoError(t, err)
				assert.True(t, d.OK)
				assert.Equal(t, int64(i), d.Used)
				assert.Equal(t, int64(5), d.Allowed)
			}

			d, err := g.CheckAndConsume(ctx, "100", assistant.TierFree, FeatureImage, 1)
			require.NoError(t, err)
			assert.False(t, d.OK)
			assert.Equal(t, int64(5), d.Used)
			assert.ErrorIs(t, d.Err(FeatureImage), assistant.ErrQuotaExceeded)

			ledger, err := store.Load(ctx, "100")
			require.NoError(t, err)
			assert.Equal(t, int64(5), ledger.Used("2024-05-01", FeatureImage))

			clock.Set(time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC))
			d, err = g.CheckAndConsume(ctx, "100", assistant.TierFree, FeatureImage, 1)
			require.NoError(t, err)
			assert.True(t, d.OK, "a new day starts from zero")
			assert.Equal(t, int64(1), d.Used)
		})
	}
}

func TestCheckAndConsumeDenialWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	g := NewGovernor(store)

	d, err := g.CheckAndConsume(ctx, "1", assistant.TierFree, FeatureVideo, 1)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, int64(0), d.Allowed)

	ledger, err := store.Load(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestCheckAndConsumeMultiUnit(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryStore())

	d, err := g.CheckAndConsume(ctx, "1", assistant.TierFree, FeaturePPTSlides, 8)
	require.NoError(t, err)
	assert.True(t, d.OK)

	d, err = g.CheckAndConsume(ctx, "1", assistant.TierFree, FeaturePPTSlides, 3)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, int64(8), d.Used)

	d, err = g.CheckAndConsume(ctx, "1", assistant.TierFree, FeaturePPTSlides, 2)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, int64(10), d.Used)
}

func TestCheckAndConsumeValidation(t *testing.T) {
	g := NewGovernor(NewMemoryStore())
	_, err := g.CheckAndConsume(context.Background(), "1", assistant.TierFree, FeatureImage, 0)
	assert.ErrorIs(t, err, assistant.ErrValidation)
}

func TestUnknownPairResolvesToZero(t *testing.T) {
	g := NewGovernor(NewMemoryStore(), WithAllowances(Allowances{}))
	d, err := g.CheckAndConsume(context.Background(), "1", assistant.TierPro, Feature("music"), 1)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, int64(0), d.Allowed)
}

func TestCheckAndConsumeConcurrentCallers(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGovernor(store)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				granted int
			)
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := g.CheckAndConsume(ctx, "7", assistant.TierStudent, FeatureImage, 1)
					if err == nil && d.OK {
						mu.Lock()
						granted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 20, granted)
		})
	}
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryStore())
	_, err := g.CheckAndConsume(ctx, "1", assistant.TierStudent, FeatureVideo, 1)
	require.NoError(t, err)

	usage, err := g.Usage(ctx, "1", assistant.TierStudent)
	require.NoError(t, err)
	require.Len(t, usage, 4)
	assert.Equal(t, FeatureUsage{Feature: FeatureVideo, Used: 1, Allowed: 2}, usage[1])
	assert.Equal(t, int64(0), usage[0].Used)
}

func TestNewStoreValidation(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, StoreTypeRedis)
	assert.ErrorIs(t, err, assistant.ErrInvalidConfig)
	_, err = NewStore(ctx, StoreTypeSQLite)
	assert.ErrorIs(t, err, assistant.ErrInvalidConfig)
	_, err = NewStore(ctx, "etcd")
	assert.ErrorIs(t, err, assistant.ErrInvalidStoreType)
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	assert.Equal(t, "2024-04-30", DayKey(time.Date(2024, 5, 1, 2, 0, 0, 0, loc)))
}
