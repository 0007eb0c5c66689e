package assistant

import (
	"context"
	"regexp"
	"sync"
	"time"
)

// Tier is a subscription level. Unsubscribed tenants are always TierFree.
type Tier int

const (
	TierFree Tier = iota
	TierStudent
	TierCreator
	TierPro
	TierStudio
)

var tierNames = [...]string{"free", "student", "creator", "pro", "studio"}

// Storage ceilings in megabytes, indexed by tier.
var storageCeilingsMB = [...]int64{1024, 5120, 10240, 51200, 122880}

// Local staging retention in days, indexed by tier.
var retentionDays = [...]int{15, 30, 60, 95, 150}

// String returns the tier name.
func (t Tier) String() string {
	return tierNames[t.clamp()]
}

// StorageCeilingMB returns the tier's total storage ceiling in megabytes.
func (t Tier) StorageCeilingMB() int64 {
	return storageCeilingsMB[t.clamp()]
}

// StorageCeilingBytes returns the tier's total storage ceiling in bytes.
func (t Tier) StorageCeilingBytes() int64 {
	return t.StorageCeilingMB() * 1024 * 1024
}

// Retention returns how long staged files are kept for the tier.
func (t Tier) Retention() time.Duration {
	return time.Duration(retentionDays[t.clamp()]) * 24 * time.Hour
}

func (t Tier) clamp() Tier {
	if t < TierFree {
		return TierFree
	}
	if t > TierStudio {
		return TierStudio
	}
	return t
}

// Backend names a storage backend.
type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendGoogle   Backend = "google"
)

// GoogleCredentials holds the tenant's Drive connection.
type GoogleCredentials struct {
	AccessToken  string `json:"google_access_token"`
	RefreshToken string `json:"google_refresh_token"`
	FolderID     string `json:"google_folder_id"`
	Email        string `json:"google_email"`
}

// Tenant is an account owning a conversation log, a quota ledger and stored artifacts.
type Tenant struct {
	Slug             string            `json:"slug"`
	Subscribed       bool              `json:"subscription"`
	TierLevel        int               `json:"subscription_tier"`
	PreferredBackend Backend           `json:"storage_using"`
	Google           GoogleCredentials `json:"google"`
}

// Tier returns the effective tier.
func (t *Tenant) Tier() Tier {
	if t == nil || !t.Subscribed {
		return TierFree
	}
	return Tier(t.TierLevel).clamp()
}

// TenantUpdate is a partial tenant update. Nil fields are left untouched.
type TenantUpdate struct {
	PreferredBackend   *Backend
	GoogleAccessToken  *string
	GoogleRefreshToken *string
	GoogleFolderID     *string
	GoogleEmail        *string
}

// Apply copies the set fields onto t.
func (u TenantUpdate) Apply(t *Tenant) {
	if u.PreferredBackend != nil {
		t.PreferredBackend = *u.PreferredBackend
	}
	if u.GoogleAccessToken != nil {
		t.Google.AccessToken = *u.GoogleAccessToken
	}
	if u.GoogleRefreshToken != nil {
		t.Google.RefreshToken = *u.GoogleRefreshToken
	}
	if u.GoogleFolderID != nil {
		t.Google.FolderID = *u.GoogleFolderID
	}
	if u.GoogleEmail != nil {
		t.Google.Email = *u.GoogleEmail
	}
}

// TenantStore reads and partially updates tenant records.
// Tenants are never created or deleted through this interface.
type TenantStore interface {
	// GetTenant returns ErrNotFound when the slug is unknown.
	GetTenant(ctx context.Context, slug string) (*Tenant, error)
	UpdateTenant(ctx context.Context, slug string, update TenantUpdate) error
}

var slugPattern = regexp.MustCompile(`^[0-9]+$`)

// ValidSlug reports whether slug has the expected opaque numeric form.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// MemoryTenantStore is an in-process TenantStore used for tests and local runs.
type MemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

// NewMemoryTenantStore returns a store seeded with the given tenants.
func NewMemoryTenantStore(tenants ...Tenant) *MemoryTenantStore {
	s := &MemoryTenantStore{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		s.tenants[t.Slug] = t
	}
	return s
}

// Put inserts or replaces a tenant.
func (s *MemoryTenantStore) Put(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.Slug] = t
}

// GetTenant implements TenantStore. The returned value is a copy.
func (s *MemoryTenantStore) GetTenant(ctx context.Context, slug string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// UpdateTenant implements TenantStore.
func (s *MemoryTenantStore) UpdateTenant(ctx context.Context, slug string, update TenantUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[slug]
	if !ok {
		return ErrNotFound
	}
	update.Apply(&t)
	s.tenants[slug] = t
	return nil
}

var _ TenantStore = (*MemoryTenantStore)(nil)
