package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"quota", &QuotaExceededError{Feature: "image", Used: 5, Allowed: 5}, ErrQuotaExceeded},
		{"storage", &StorageCapacityError{Slug: "1", UsedBytes: 10, Limit: 5}, ErrStorageCapacity},
		{"provider", &ProviderError{Provider: "deapi", Err: cause}, ErrProvider},
		{"timeout", &ProviderTimeoutError{Provider: "deapi", Attempts: 3}, ErrProviderTimeout},
		{"credential", &CredentialError{Slug: "1", Reason: "expired", Err: cause}, ErrCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
	assert.ErrorIs(t, &ProviderError{Provider: "x", Err: cause}, cause)
	assert.NotErrorIs(t, &ProviderTimeoutError{}, ErrProvider)
}

func TestTenantTier(t *testing.T) {
	assert.Equal(t, TierFree, (&Tenant{TierLevel: 3}).Tier(), "unsubscribed tenants are free")
	assert.Equal(t, TierPro, (&Tenant{Subscribed: true, TierLevel: 3}).Tier())
	assert.Equal(t, TierStudio, (&Tenant{Subscribed: true, TierLevel: 9}).Tier())
	assert.Equal(t, TierFree, (*Tenant)(nil).Tier())

	assert.Equal(t, "creator", TierCreator.String())
	assert.Equal(t, int64(1024), TierFree.StorageCeilingMB())
	assert.Equal(t, int64(122880), TierStudio.StorageCeilingMB())
	assert.Equal(t, int64(5120)*1024*1024, TierStudent.StorageCeilingBytes())
	assert.Equal(t, 15*24*time.Hour, TierFree.Retention())
	assert.Equal(t, 150*24*time.Hour, TierStudio.Retention())
}

func TestMemoryTenantStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTenantStore(Tenant{Slug: "42", PreferredBackend: BackendSupabase})

	_, err := store.GetTenant(ctx, "7")
	require.ErrorIs(t, err, ErrNotFound)

	backend := BackendGoogle
	token := "tok"
	require.NoError(t, store.UpdateTenant(ctx, "42", TenantUpdate{PreferredBackend: &backend, GoogleAccessToken: &token}))

	got, err := store.GetTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, BackendGoogle, got.PreferredBackend)
	assert.Equal(t, "tok", got.Google.AccessToken)
	assert.Empty(t, got.Google.RefreshToken)

	got.Google.AccessToken = "mutated"
	again, _ := store.GetTenant(ctx, "42")
	assert.Equal(t, "tok", again.Google.AccessToken)

	assert.ErrorIs(t, store.UpdateTenant(ctx, "7", TenantUpdate{}), ErrNotFound)
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("12345"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("12a"))
	assert.False(t, ValidSlug("../1"))
}

func TestParseIntents(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		got := ParseIntents(`[{"intent":"Image","parameters":{"prompt":"a cat","count":2}},{"intent":"music","parameters":{"query":"lofi"}}]`, "x")
		require.Len(t, got, 2)
		assert.Equal(t, "image", got[0].Name)
		assert.Equal(t, "a cat", got[0].Prompt())
		assert.Equal(t, "2", got[0].Param("count"))
		assert.Equal(t, "music", got[1].Prompt())
	})
	t.Run("fenced object", func(t *testing.T) {
		got := ParseIntents("```json\n{\"intent\":\"chat\",\"parameters\":{\"prompt\":\"hi\"}}\n```", "hi")
		require.Len(t, got, 1)
		assert.Equal(t, "chat", got[0].Name)
	})
	t.Run("wrapped", func(t *testing.T) {
		got := ParseIntents(`{"intents":[{"intent":"alarm"}]}`, "wake me")
		require.Len(t, got, 1)
		assert.Equal(t, "alarm", got[0].Name)
	})
	t.Run("malformed falls back to chat", func(t *testing.T) {
		for _, out := range []string{"", "sorry, I can't", `[{"parameters":{}}]`, `["image"]`} {
			got := ParseIntents(out, "hello there")
			require.Len(t, got, 1, out)
			assert.Equal(t, IntentChat, got[0].Name)
			assert.Equal(t, "hello there", got[0].Prompt())
		}
	})
}

func TestTruncateHistory(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC)
	var history []Exchange
	for i := 0; i < 5; i++ {
		history = append(history, NewExchange("abcdefgh", "abcdefgh", KindTurn, at))
	}
	assert.Equal(t, "01 Mar 2024", history[0].Date)
	assert.Equal(t, "02:05 PM", history[0].Time)
	assert.Equal(t, 4, history[0].Tokens())

	assert.Len(t, TruncateHistory(history, 1000, 3), 3)
	assert.Len(t, TruncateHistory(history, 9, 10), 2)
	assert.Empty(t, TruncateHistory(nil, 10, 10))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 2, EstimateTokens("你好"))
}

func TestTurnsFiltersTrace(t *testing.T) {
	log := []Exchange{{User: "a"}, {User: "b", Kind: KindTrace}, {User: "c"}}
	got := Turns(log)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].User)
}

func TestTenantLocksSerialize(t *testing.T) {
	locks := NewTenantLocks()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.With("1", func() error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len())

	unlock := locks.Lock("2")
	unlock()
	unlock()
	assert.Equal(t, 0, locks.Len())
}
