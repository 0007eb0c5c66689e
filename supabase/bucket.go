package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/blobstore"
	storage_go "github.com/supabase-community/storage-go"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "user-files"

// listPageSize bounds a single listing request.
const listPageSize = 1000

// Bucket implements blobstore.ObjectStore over a Supabase Storage bucket.
type Bucket struct {
	api    *storage_go.Client
	bucket string
}

// NewBucket wraps a storage client. An empty bucket name selects DefaultBucket.
func NewBucket(api *storage_go.Client, bucket string) *Bucket {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Bucket{api: api, bucket: bucket}
}

// Upload implements blobstore.ObjectStore.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	opts := storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	if _, err := b.api.UploadFile(b.bucket, path, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("upload %s: %w", path, mapError(err))
	}
	return nil
}

// Download implements blobstore.ObjectStore.
func (b *Bucket) Download(ctx context.Context, path string) ([]byte, error) {
	data, err := b.api.DownloadFile(b.bucket, path)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, mapError(err))
	}
	return data, nil
}

// Remove implements blobstore.ObjectStore.
func (b *Bucket) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := b.api.RemoveFile(b.bucket, paths); err != nil {
		return fmt.Errorf("remove %v: %w", paths, mapError(err))
	}
	return nil
}

// List implements blobstore.ObjectStore. Folder placeholders are skipped.
func (b *Bucket) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	var out []blobstore.ObjectInfo
	for offset := 0; ; offset += listPageSize {
		page, err := b.api.ListFiles(b.bucket, prefix, storage_go.FileSearchOptions{
			Limit:  listPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
		}
		for _, obj := range page {
			if obj.Id == "" {
				continue
			}
			out = append(out, blobstore.ObjectInfo{Name: obj.Name, SizeBytes: objectSize(obj.Metadata)})
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

func objectSize(metadata interface{}) int64 {
	m, ok := metadata.(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := m["size"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// mapError translates storage API failures into the shared sentinels.
func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return fmt.Errorf("%w: %v", assistant.ErrNotFound, err)
	case strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "409"):
		return fmt.Errorf("%w: %v", assistant.ErrAlreadyExists, err)
	}
	return err
}

var _ blobstore.ObjectStore = (*Bucket)(nil)
