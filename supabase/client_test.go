package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creastat/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRest struct {
	gets    atomic.Int32
	patches atomic.Int32
	body    atomic.Value
	rows    string
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/rest/v1/devices") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		f.gets.Add(1)
		if r.URL.Query().Get("slug") != "eq.42" {
			_, _ = io.WriteString(w, "[]")
			return
		}
		_, _ = io.WriteString(w, f.rows)
	case http.MethodPatch:
		f.patches.Add(1)
		b, _ := io.ReadAll(r.Body)
		f.body.Store(string(b))
		if r.URL.Query().Get("slug") != "eq.42" {
			_, _ = io.WriteString(w, "[]")
			return
		}
		_, _ = io.WriteString(w, f.rows)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, rest *fakeRest) *Client {
	t.Helper()
	srv := httptest.NewServer(rest)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, APIKey: "service-key", CacheTTL: time.Minute})
	require.NoError(t, err)
	return c
}

const row42 = `[{"slug":"42","subscription":true,"subscription_tier":2,"storage_using":"google",
	"google_access_token":"at","google_refresh_token":"rt","google_folder_id":null,"google_email":"a@b.c"}]`

func TestGetTenantMapsRowAndCaches(t *testing.T) {
	rest := &fakeRest{rows: row42}
	c := newTestClient(t, rest)
	ctx := context.Background()

	tenant, err := c.GetTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, assistant.TierCreator, tenant.Tier())
	assert.Equal(t, assistant.BackendGoogle, tenant.PreferredBackend)
	assert.Equal(t, "rt", tenant.Google.RefreshToken)
	assert.Empty(t, tenant.Google.FolderID)

	_, err = c.GetTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int32(1), rest.gets.Load(), "second read served from cache")

	_, err = c.GetTenant(ctx, "7")
	assert.ErrorIs(t, err, assistant.ErrNotFound)
}

func TestUpdateTenantSendsSetColumnsAndInvalidates(t *testing.T) {
	rest := &fakeRest{rows: row42}
	c := newTestClient(t, rest)
	ctx := context.Background()

	_, err := c.GetTenant(ctx, "42")
	require.NoError(t, err)

	token := "fresh"
	require.NoError(t, c.UpdateTenant(ctx, "42", assistant.TenantUpdate{GoogleAccessToken: &token}))

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(rest.body.Load().(string)), &sent))
	assert.Equal(t, map[string]any{"google_access_token": "fresh"}, sent)

	_, err = c.GetTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int32(2), rest.gets.Load(), "update drops the cached record")

	assert.ErrorIs(t, c.UpdateTenant(ctx, "7", assistant.TenantUpdate{GoogleAccessToken: &token}), assistant.ErrNotFound)

	require.NoError(t, c.UpdateTenant(ctx, "42", assistant.TenantUpdate{}))
	assert.Equal(t, int32(2), rest.patches.Load(), "empty update sends nothing")
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.ErrorIs(t, err, assistant.ErrInvalidConfig)
	_, err = New(Config{URL: "http://x"})
	assert.ErrorIs(t, err, assistant.ErrInvalidConfig)
}

func TestRowDefaultsToSupabaseBackend(t *testing.T) {
	tenant := deviceRow{Slug: "1", StorageUsing: "dropbox"}.tenant()
	assert.Equal(t, assistant.BackendSupabase, tenant.PreferredBackend)
	assert.Equal(t, assistant.TierFree, tenant.Tier())
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(errors.New("Object not found")), assistant.ErrNotFound)
	assert.ErrorIs(t, mapError(errors.New("The resource already exists")), assistant.ErrAlreadyExists)
	assert.ErrorIs(t, mapError(errors.New("Duplicate key")), assistant.ErrAlreadyExists)
	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}

func TestObjectSize(t *testing.T) {
	assert.Equal(t, int64(1234), objectSize(map[string]interface{}{"size": float64(1234)}))
	assert.Equal(t, int64(0), objectSize(nil))
	assert.Equal(t, int64(0), objectSize(map[string]interface{}{"size": "x"}))
}

func TestNewBucketDefaultsName(t *testing.T) {
	assert.Equal(t, DefaultBucket, NewBucket(nil, "").bucket)
	assert.Equal(t, "docs", NewBucket(nil, "docs").bucket)
}
