// Package supabase adapts Supabase to the tenant store and the guaranteed
// artifact backend.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/creastat/assistant"
	"github.com/supabase-community/supabase-go"
)

// Name of the table holding tenant records.
const devicesTable = "devices"

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes
}

// Client implements assistant.TenantStore using Supabase
type Client struct {
	client   *supabase.Client
	cache    *cache
	cacheTTL time.Duration
	now      func() time.Time
}

// cache provides thread-safe caching of tenant records
type cache struct {
	mu     sync.RWMutex
	bySlug map[string]*cacheEntry[assistant.Tenant]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// deviceRow is the stored shape of a tenant.
type deviceRow struct {
	Slug               string  `json:"slug"`
	Subscription       bool    `json:"subscription"`
	SubscriptionTier   int     `json:"subscription_tier"`
	StorageUsing       string  `json:"storage_using"`
	GoogleAccessToken  *string `json:"google_access_token"`
	GoogleRefreshToken *string `json:"google_refresh_token"`
	GoogleFolderID     *string `json:"google_folder_id"`
	GoogleEmail        *string `json:"google_email"`
}

func (r deviceRow) tenant() assistant.Tenant {
	backend := assistant.Backend(strings.ToLower(strings.TrimSpace(r.StorageUsing)))
	if backend != assistant.BackendGoogle {
		backend = assistant.BackendSupabase
	}
	return assistant.Tenant{
		Slug:             r.Slug,
		Subscribed:       r.Subscription,
		TierLevel:        r.SubscriptionTier,
		PreferredBackend: backend,
		Google: assistant.GoogleCredentials{
			AccessToken:  deref(r.GoogleAccessToken),
			RefreshToken: deref(r.GoogleRefreshToken),
			FolderID:     deref(r.GoogleFolderID),
			Email:        deref(r.GoogleEmail),
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", assistant.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: supabase API key is required", assistant.ErrInvalidConfig)
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:   client,
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
		cache: &cache{
			bySlug: make(map[string]*cacheEntry[assistant.Tenant]),
		},
	}, nil
}

// GetTenant retrieves a tenant by slug
func (c *Client) GetTenant(ctx context.Context, slug string) (*assistant.Tenant, error) {
	// Check cache first
	if cached, ok := c.getFromCache(slug); ok {
		return &cached, nil
	}

	var rows []deviceRow
	_, err := c.client.From(devicesTable).
		Select("*", "", false).
		Eq("slug", slug).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("tenant %s: %w", slug, assistant.ErrNotFound)
	}

	tenant := rows[0].tenant()
	c.addToCache(slug, tenant)

	return &tenant, nil
}

// UpdateTenant applies a partial update and drops the cached record.
func (c *Client) UpdateTenant(ctx context.Context, slug string, update assistant.TenantUpdate) error {
	values := updateColumns(update)
	if len(values) == 0 {
		return nil
	}

	// Drop the cached copy whatever the outcome so the next read is fresh
	defer c.invalidate(slug)

	var rows []deviceRow
	_, err := c.client.From(devicesTable).
		Update(values, "representation", "").
		Eq("slug", slug).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("tenant %s: %w", slug, assistant.ErrNotFound)
	}
	return nil
}

// Storage returns a bucket handle over this project's storage API.
func (c *Client) Storage(bucket string) *Bucket {
	return NewBucket(c.client.Storage, bucket)
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

func updateColumns(u assistant.TenantUpdate) map[string]any {
	values := map[string]any{}
	if u.PreferredBackend != nil {
		values["storage_using"] = string(*u.PreferredBackend)
	}
	if u.GoogleAccessToken != nil {
		values["google_access_token"] = *u.GoogleAccessToken
	}
	if u.GoogleRefreshToken != nil {
		values["google_refresh_token"] = *u.GoogleRefreshToken
	}
	if u.GoogleFolderID != nil {
		values["google_folder_id"] = *u.GoogleFolderID
	}
	if u.GoogleEmail != nil {
		values["google_email"] = *u.GoogleEmail
	}
	return values
}

func (c *Client) getFromCache(slug string) (assistant.Tenant, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.bySlug[slug]; ok && c.now().Before(e.expiresAt) {
		return e.value, true
	}
	return assistant.Tenant{}, false
}

func (c *Client) addToCache(slug string, t assistant.Tenant) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.bySlug[slug] = &cacheEntry[assistant.Tenant]{
		value:     t,
		expiresAt: c.now().Add(c.cacheTTL),
	}
}

func (c *Client) invalidate(slug string) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	delete(c.cache.bySlug, slug)
}

// Compile-time check that Client implements TenantStore
var _ assistant.TenantStore = (*Client)(nil)
