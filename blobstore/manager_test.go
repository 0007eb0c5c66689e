package blobstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/creastat/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu         sync.Mutex
	objects    map[string][]byte
	conflicts  int
	uploadErr  error
	removes    int
	uploadHits int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadHits++
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return assistant.ErrAlreadyExists
	}
	m.objects[path] = data
	return nil
}

func (m *memObjects) Download(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, assistant.ErrNotFound
	}
	return data, nil
}

func (m *memObjects) Remove(ctx context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

func (m *memObjects) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for p, d := range m.objects {
		if strings.HasPrefix(p, prefix+"/") {
			out = append(out, ObjectInfo{Name: p, SizeBytes: int64(len(d))})
		}
	}
	return out, nil
}

type fakeDrive struct {
	mu           sync.Mutex
	validToken   string
	refreshErr   error
	refreshed    string
	refreshCalls int
	folderCalls  int
	quota        DriveQuota
	uploadErr    error
	files        map[string][]byte
}

func (d *fakeDrive) ValidateToken(ctx context.Context, token string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return token == d.validToken, nil
}

func (d *fakeDrive) Refresh(ctx context.Context, rt string) (Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshCalls++
	if d.refreshErr != nil {
		return Token{}, d.refreshErr
	}
	d.validToken = d.refreshed
	return Token{AccessToken: d.refreshed}, nil
}

func (d *fakeDrive) CreateFolder(ctx context.Context, token, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.folderCalls++
	return "folder-1", nil
}

func (d *fakeDrive) Quota(ctx context.Context, token string) (DriveQuota, error) {
	return d.quota, nil
}

func (d *fakeDrive) Upload(ctx context.Context, token, folderID, filename, contentType string, data []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return "", d.uploadErr
	}
	if d.files == nil {
		d.files = map[string][]byte{}
	}
	d.files[folderID+"/"+filename] = data
	return "id-" + filename, nil
}

func (d *fakeDrive) Find(ctx context.Context, token, folderID, filename string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[folderID+"/"+filename]; !ok {
		return "", assistant.ErrNotFound
	}
	return folderID + "/" + filename, nil
}

func (d *fakeDrive) Download(ctx context.Context, token, id string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[id], nil
}

func googleTenant() assistant.Tenant {
	return assistant.Tenant{
		Slug:             "42",
		Subscribed:       true,
		TierLevel:        1,
		PreferredBackend: assistant.BackendGoogle,
		Google:           assistant.GoogleCredentials{AccessToken: "stale", RefreshToken: "rt"},
	}
}

func TestStoreFallsBackWhenRefreshFails(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(googleTenant())
	staging := NewStaging(t.TempDir())
	objects := newMemObjects()
	drive := &fakeDrive{validToken: "other", refreshErr: errors.New("invalid_grant")}
	m := NewManager(tenants, staging, objects, WithDrive(drive))

	ref, err := m.Store(ctx, "42", "cat.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, assistant.BackendSupabase, ref.Backend)
	assert.Equal(t, "42/cat.png", ref.Path)
	assert.Equal(t, int64(3), ref.SizeBytes)
	assert.Equal(t, []byte("png"), objects.objects["42/cat.png"])
	assert.Equal(t, 1, drive.refreshCalls)

	size, err := staging.Size("42")
	require.NoError(t, err)
	assert.Zero(t, size, "staged copy removed")
}

func TestStoreRefreshesPersistsAndUsesDrive(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(googleTenant())
	objects := newMemObjects()
	drive := &fakeDrive{validToken: "nope", refreshed: "fresh"}
	m := NewManager(tenants, NewStaging(t.TempDir()), objects, WithDrive(drive))

	ref, err := m.Store(ctx, "42", "notes.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, assistant.BackendGoogle, ref.Backend)
	assert.Equal(t, "id-notes.pdf", ref.FileID)
	assert.Empty(t, objects.objects)

	tenant, err := tenants.GetTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tenant.Google.AccessToken)
	assert.Equal(t, "folder-1", tenant.Google.FolderID)

	// Second write reuses the persisted token and folder
	_, err = m.Store(ctx, "42", "notes2.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, 1, drive.refreshCalls)
	assert.Equal(t, 1, drive.folderCalls)

	data, err := m.Retrieve(ctx, "42", "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))
}

// downTenants loads tenants but rejects every update.
type downTenants struct {
	*assistant.MemoryTenantStore
}

func (downTenants) UpdateTenant(ctx context.Context, slug string, update assistant.TenantUpdate) error {
	return errors.New("db down")
}

func TestStoreFallsBackWhenCredentialPersistFails(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshed token", func(t *testing.T) {
		tenants := downTenants{assistant.NewMemoryTenantStore(googleTenant())}
		objects := newMemObjects()
		drive := &fakeDrive{validToken: "nope", refreshed: "fresh"}
		m := NewManager(tenants, NewStaging(t.TempDir()), objects, WithDrive(drive))

		ref, err := m.Store(ctx, "42", "notes.pdf", []byte("pdf"))
		require.NoError(t, err)
		assert.NotEqual(t, assistant.BackendGoogle, ref.Backend)
		assert.Equal(t, assistant.BackendSupabase, ref.Backend)
		assert.Equal(t, []byte("pdf"), objects.objects["42/notes.pdf"])
		assert.Empty(t, drive.files)
		assert.Equal(t, 1, drive.refreshCalls)
	})

	t.Run("new folder id", func(t *testing.T) {
		tenant := googleTenant()
		tenant.Google.AccessToken = "good"
		tenants := downTenants{assistant.NewMemoryTenantStore(tenant)}
		objects := newMemObjects()
		drive := &fakeDrive{validToken: "good"}
		m := NewManager(tenants, NewStaging(t.TempDir()), objects, WithDrive(drive))

		ref, err := m.Store(ctx, "42", "notes.pdf", []byte("pdf"))
		require.NoError(t, err)
		assert.Equal(t, assistant.BackendSupabase, ref.Backend)
		assert.Equal(t, []byte("pdf"), objects.objects["42/notes.pdf"])
		assert.Empty(t, drive.files)
		assert.Equal(t, 1, drive.folderCalls)
	})
}

func TestStoreFallsBackWhenDriveFull(t *testing.T) {
	ctx := context.Background()
	tenant := googleTenant()
	tenant.Google.AccessToken = "good"
	tenant.Google.FolderID = "f"
	objects := newMemObjects()
	drive := &fakeDrive{validToken: "good", quota: DriveQuota{Limit: 10, Usage: 9}}
	m := NewManager(assistant.NewMemoryTenantStore(tenant), NewStaging(t.TempDir()), objects, WithDrive(drive))

	ref, err := m.Store(ctx, "42", "big.mp4", []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, assistant.BackendSupabase, ref.Backend)
}

func TestStoreRetriesOnceAfterConflict(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "1"})
	objects := newMemObjects()
	objects.conflicts = 1
	m := NewManager(tenants, NewStaging(t.TempDir()), objects)

	_, err := m.Store(ctx, "1", "a.txt", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, objects.uploadHits)
	assert.Equal(t, 1, objects.removes)
}

func TestStoreFallbackFailurePropagates(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "1"})
	objects := newMemObjects()
	objects.uploadErr = errors.New("503")
	staging := NewStaging(t.TempDir())
	m := NewManager(tenants, staging, objects)

	_, err := m.Store(ctx, "1", "a.txt", []byte("a"))
	require.Error(t, err)

	// The artifact stays reachable from staging
	data, err := m.Retrieve(ctx, "1", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestStoreRejectsOverCeiling(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "1"})
	staging := NewStaging(t.TempDir())
	m := NewManager(tenants, staging, newMemObjects())

	// A sparse file fills the free tier ceiling without using disk
	path, err := staging.Write("1", "existing.bin", nil)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, assistant.TierFree.StorageCeilingBytes()))

	_, err = m.Store(ctx, "1", "one-more.png", []byte("x"))
	assert.ErrorIs(t, err, assistant.ErrStorageCapacity)

	_, err = staging.Read("1", "one-more.png")
	assert.ErrorIs(t, err, assistant.ErrNotFound)
}

func TestRetrieveMiss(t *testing.T) {
	m := NewManager(assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "1"}), NewStaging(t.TempDir()), newMemObjects())
	_, err := m.Retrieve(context.Background(), "1", "nope.png")
	assert.ErrorIs(t, err, assistant.ErrNotFound)

	_, err = m.Store(context.Background(), "404", "x.png", []byte("x"))
	assert.ErrorIs(t, err, assistant.ErrNotFound)
}

func TestUsageCountsStagedAndStored(t *testing.T) {
	ctx := context.Background()
	staging := NewStaging(t.TempDir())
	objects := newMemObjects()
	objects.objects["1/a.png"] = []byte("12345")
	objects.objects["10/b.png"] = []byte("123")
	_, err := staging.Write("1", "pending.png", []byte("12"))
	require.NoError(t, err)

	m := NewManager(assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "1"}), staging, objects)
	used, err := m.Usage(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), used)
}

func TestConcurrentStoresRefreshOnce(t *testing.T) {
	ctx := context.Background()
	tenants := assistant.NewMemoryTenantStore(googleTenant())
	drive := &fakeDrive{validToken: "nope", refreshed: "fresh"}
	m := NewManager(tenants, NewStaging(t.TempDir()), newMemObjects(), WithDrive(drive))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Store(ctx, "42", string(rune('a'+i))+".png", []byte("x"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, drive.refreshCalls)
	assert.Equal(t, 1, drive.folderCalls)
}
