package blobstore

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name      string
	SizeBytes int64
}

// ObjectStore is the guaranteed backend. Implementations map a missing object
// to assistant.ErrNotFound and a rejected non-upsert write of an existing
// path to assistant.ErrAlreadyExists.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
	Download(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, paths ...string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// DriveQuota is the account storage quota. Limit is zero when unlimited or unreported.
type DriveQuota struct {
	Limit int64
	Usage int64
}

// Available returns the remaining bytes and whether a limit is reported.
func (q DriveQuota) Available() (int64, bool) {
	if q.Limit <= 0 {
		return 0, false
	}
	return q.Limit - q.Usage, true
}

// Token is a refreshed access token.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Drive is the credentialed preferred backend.
type Drive interface {
	// ValidateToken reports whether the access token is currently accepted.
	ValidateToken(ctx context.Context, accessToken string) (bool, error)
	// Refresh exchanges a refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (Token, error)
	// CreateFolder creates a folder and returns its id.
	CreateFolder(ctx context.Context, accessToken, name string) (string, error)
	// Quota returns the account storage quota.
	Quota(ctx context.Context, accessToken string) (DriveQuota, error)
	// Upload stores data in the folder and returns the file id.
	Upload(ctx context.Context, accessToken, folderID, filename, contentType string, data []byte) (string, error)
	// Find returns the id of the named file in the folder, or assistant.ErrNotFound.
	Find(ctx context.Context, accessToken, folderID, filename string) (string, error)
	// Download returns a file's content.
	Download(ctx context.Context, accessToken, fileID string) ([]byte, error)
}
