// Package blobstore routes generated artifacts to the tenant's preferred
// backend and falls back to the guaranteed object store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/metrics"
	"github.com/rs/zerolog/log"
)

// ArtifactRef locates a stored artifact.
type ArtifactRef struct {
	Backend   assistant.Backend `json:"backend"`
	Path      string            `json:"path"`
	FileID    string            `json:"file_id,omitempty"`
	Filename  string            `json:"filename"`
	SizeBytes int64             `json:"size_bytes"`
}

// Manager stores and retrieves tenant artifacts.
type Manager struct {
	tenants    assistant.TenantStore
	staging    *Staging
	objects    ObjectStore
	drive      Drive
	folderName string
	locks      *assistant.TenantLocks
	metrics    *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithDrive enables the Drive backend.
func WithDrive(d Drive) Option {
	return func(m *Manager) {
		m.drive = d
	}
}

// WithFolderName sets the Drive folder created for each tenant.
func WithFolderName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.folderName = name
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager. Without WithDrive every write goes to objects.
func NewManager(tenants assistant.TenantStore, staging *Staging, objects ObjectStore, opts ...Option) *Manager {
	m := &Manager{
		tenants:    tenants,
		staging:    staging,
		objects:    objects,
		folderName: DefaultFolderName,
		locks:      assistant.NewTenantLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObjectPath returns the guaranteed-backend path of a tenant file.
func ObjectPath(slug, filename string) string {
	return slug + "/" + filename
}

// Store stages data, then writes it to the preferred backend or the
// guaranteed one. Only a guaranteed-backend failure is returned; preferred
// backend failures are logged and fall through.
func (m *Manager) Store(ctx context.Context, slug, filename string, data []byte) (ArtifactRef, error) {
	name, err := CleanName(filename)
	if err != nil {
		return ArtifactRef{}, err
	}

	tenant, err := m.tenants.GetTenant(ctx, slug)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("load tenant %s: %w", slug, err)
	}
	tier := tenant.Tier()

	if _, err := m.staging.Purge(slug, tier.Retention()); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("Failed to purge staging area")
	}

	staged, err := m.staging.Size(slug)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("measure staging: %w", err)
	}
	size := int64(len(data))
	if staged+size > tier.StorageCeilingBytes() {
		return ArtifactRef{}, &assistant.StorageCapacityError{Slug: slug, UsedBytes: staged, Limit: tier.StorageCeilingBytes()}
	}

	if _, err := m.staging.Write(slug, name, data); err != nil {
		return ArtifactRef{}, err
	}

	contentType := contentTypeFor(name)

	if tenant.PreferredBackend == assistant.BackendGoogle && tenant.Google.AccessToken != "" && m.drive != nil {
		ref, err := m.storeDrive(ctx, slug, name, contentType, data)
		m.recordWrite(assistant.BackendGoogle, err)
		if err == nil {
			m.unstage(slug, name)
			return ref, nil
		}
		log.Warn().Err(err).Str("slug", slug).Str("file", name).Msg("Preferred backend failed, using fallback")
	}

	ref, err := m.storeObject(ctx, slug, name, contentType, data)
	m.recordWrite(assistant.BackendSupabase, err)
	if err != nil {
		return ArtifactRef{}, err
	}
	m.unstage(slug, name)
	return ref, nil
}

// Retrieve returns an artifact's content following the same backend order
// as Store. A miss in both backends returns assistant.ErrNotFound.
func (m *Manager) Retrieve(ctx context.Context, slug, filename string) ([]byte, error) {
	name, err := CleanName(filename)
	if err != nil {
		return nil, err
	}

	tenant, err := m.tenants.GetTenant(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", slug, err)
	}

	if tenant.PreferredBackend == assistant.BackendGoogle && tenant.Google.AccessToken != "" && m.drive != nil {
		data, err := m.retrieveDrive(ctx, slug, name)
		if err == nil {
			return data, nil
		}
		log.Debug().Err(err).Str("slug", slug).Str("file", name).Msg("Drive retrieve failed, trying fallback")
	}

	data, err := m.objects.Download(ctx, ObjectPath(slug, name))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, assistant.ErrNotFound) {
		return nil, err
	}

	// A file whose upload failed may still be staged
	if data, serr := m.staging.Read(slug, name); serr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, assistant.ErrNotFound)
}

// Usage returns the tenant's staged plus guaranteed-backend bytes.
func (m *Manager) Usage(ctx context.Context, slug string) (int64, error) {
	staged, err := m.staging.Size(slug)
	if err != nil {
		return 0, err
	}
	objects, err := m.objects.List(ctx, slug)
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}
	total := staged
	for _, o := range objects {
		total += o.SizeBytes
	}
	return total, nil
}

// Sweep purges aged staged files for every tenant using its tier retention.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.staging.Sweep(func(slug string) time.Duration {
		t, err := m.tenants.GetTenant(ctx, slug)
		if err != nil {
			return assistant.TierFree.Retention()
		}
		return t.Tier().Retention()
	})
}

func (m *Manager) storeDrive(ctx context.Context, slug, name, contentType string, data []byte) (ArtifactRef, error) {
	token, folderID, err := m.driveAccess(ctx, slug)
	if err != nil {
		return ArtifactRef{}, err
	}

	quota, err := m.drive.Quota(ctx, token)
	if err != nil {
		m.recordFallback("quota")
		return ArtifactRef{}, err
	}
	if avail, limited := quota.Available(); limited && avail < int64(len(data)) {
		m.recordFallback("capacity")
		return ArtifactRef{}, &assistant.StorageCapacityError{Slug: slug, UsedBytes: quota.Usage, Limit: quota.Limit}
	}

	fileID, err := m.drive.Upload(ctx, token, folderID, name, contentType, data)
	if err != nil {
		m.recordFallback("upload")
		return ArtifactRef{}, err
	}

	log.Info().Str("slug", slug).Str("file", name).Str("backend", string(assistant.BackendGoogle)).Msg("Artifact stored")
	return ArtifactRef{
		Backend:   assistant.BackendGoogle,
		Path:      "gdrive:" + fileID,
		FileID:    fileID,
		Filename:  name,
		SizeBytes: int64(len(data)),
	}, nil
}

func (m *Manager) retrieveDrive(ctx context.Context, slug, name string) ([]byte, error) {
	token, folderID, err := m.driveAccess(ctx, slug)
	if err != nil {
		return nil, err
	}
	id, err := m.drive.Find(ctx, token, folderID, name)
	if err != nil {
		return nil, err
	}
	return m.drive.Download(ctx, token, id)
}

// driveAccess returns a usable access token and folder id. Validation,
// refresh, persistence and folder creation run under the tenant lock so
// concurrent turns do not refresh or create folders twice.
func (m *Manager) driveAccess(ctx context.Context, slug string) (token, folderID string, err error) {
	unlock := m.locks.Lock(slug)
	defer unlock()

	tenant, err := m.tenants.GetTenant(ctx, slug)
	if err != nil {
		return "", "", err
	}
	creds := tenant.Google

	token, err = m.ensureToken(ctx, slug, creds)
	if err != nil {
		m.recordFallback("credential")
		return "", "", err
	}

	folderID = creds.FolderID
	if folderID == "" {
		folderID, err = m.drive.CreateFolder(ctx, token, m.folderName)
		if err != nil {
			m.recordFallback("folder")
			return "", "", fmt.Errorf("create folder: %w", err)
		}
		if perr := m.tenants.UpdateTenant(ctx, slug, assistant.TenantUpdate{GoogleFolderID: &folderID}); perr != nil {
			m.recordFallback("credential")
			return "", "", &assistant.CredentialError{Slug: slug, Reason: "persist folder id", Err: perr}
		}
	}
	return token, folderID, nil
}

func (m *Manager) ensureToken(ctx context.Context, slug string, creds assistant.GoogleCredentials) (string, error) {
	if creds.AccessToken == "" {
		return "", &assistant.CredentialError{Slug: slug, Reason: "not connected"}
	}

	valid, err := m.drive.ValidateToken(ctx, creds.AccessToken)
	if err != nil {
		log.Debug().Err(err).Str("slug", slug).Msg("Token validation failed, attempting refresh")
	}
	if valid {
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		return "", &assistant.CredentialError{Slug: slug, Reason: "access token expired and no refresh token"}
	}

	tok, err := m.drive.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return "", &assistant.CredentialError{Slug: slug, Reason: "refresh failed", Err: err}
	}

	update := assistant.TenantUpdate{GoogleAccessToken: &tok.AccessToken}
	if tok.RefreshToken != "" && tok.RefreshToken != creds.RefreshToken {
		update.GoogleRefreshToken = &tok.RefreshToken
	}
	// A token that cannot be persisted is not used.
	if perr := m.tenants.UpdateTenant(ctx, slug, update); perr != nil {
		return "", &assistant.CredentialError{Slug: slug, Reason: "persist refreshed token", Err: perr}
	}
	log.Info().Str("slug", slug).Msg("Refreshed Drive access token")
	return tok.AccessToken, nil
}

func (m *Manager) storeObject(ctx context.Context, slug, name, contentType string, data []byte) (ArtifactRef, error) {
	path := ObjectPath(slug, name)
	err := m.objects.Upload(ctx, path, data, contentType, true)
	if errors.Is(err, assistant.ErrAlreadyExists) {
		if rerr := m.objects.Remove(ctx, path); rerr != nil {
			log.Warn().Err(rerr).Str("path", path).Msg("Failed to remove existing object before retry")
		}
		err = m.objects.Upload(ctx, path, data, contentType, true)
	}
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("store %s: %w", path, err)
	}

	log.Info().Str("slug", slug).Str("file", name).Str("backend", string(assistant.BackendSupabase)).Msg("Artifact stored")
	return ArtifactRef{
		Backend:   assistant.BackendSupabase,
		Path:      path,
		Filename:  name,
		SizeBytes: int64(len(data)),
	}, nil
}

func (m *Manager) unstage(slug, name string) {
	if err := m.staging.Remove(slug, name); err != nil {
		log.Warn().Err(err).Str("slug", slug).Str("file", name).Msg("Failed to remove staged file")
	}
}

func (m *Manager) recordWrite(b assistant.Backend, err error) {
	if m.metrics != nil {
		m.metrics.RecordStorageWrite(string(b), err)
	}
}

func (m *Manager) recordFallback(stage string) {
	if m.metrics != nil {
		m.metrics.RecordFallback(stage)
	}
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
