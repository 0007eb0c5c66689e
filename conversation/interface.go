package conversation

import (
	"context"

	"github.com/creastat/assistant"
)

// Store persists per-tenant conversation logs. Logs are append-only: entries
// are never removed or inserted, so an index keeps naming the same exchange.
type Store interface {
	// Load returns the tenant's log in order. A missing log is empty, not an error.
	Load(ctx context.Context, slug string) ([]assistant.Exchange, error)

	// Append adds e to the end of the log and returns its 0-based index.
	Append(ctx context.Context, slug string, e assistant.Exchange) (int, error)

	// Replace overwrites the entry at index.
	// Returns assistant.ErrNotFound if index is out of range.
	Replace(ctx context.Context, slug string, index int, e assistant.Exchange) error

	// Close closes the store and releases any resources.
	Close() error
}

// Objects is the slice of an object store the document driver needs.
type Objects interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
}
