package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creastat/assistant"
)

// Name of the per-tenant log document.
const documentName = "chat.json"

// ObjectStore keeps each log as one JSON array document at <slug>/chat.json.
// Every write rewrites the document, so callers must serialize writes per
// tenant (Log does).
type ObjectStore struct {
	objects Objects
}

// NewObjectStore creates a document-backed conversation store.
func NewObjectStore(objects Objects) *ObjectStore {
	return &ObjectStore{objects: objects}
}

// Load implements Store.
func (s *ObjectStore) Load(ctx context.Context, slug string) ([]assistant.Exchange, error) {
	data, err := s.objects.Download(ctx, s.path(slug))
	if errors.Is(err, assistant.ErrNotFound) {
		return []assistant.Exchange{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []assistant.Exchange{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path(slug), err)
	}
	return out, nil
}

// Append implements Store.
func (s *ObjectStore) Append(ctx context.Context, slug string, e assistant.Exchange) (int, error) {
	log, err := s.Load(ctx, slug)
	if err != nil {
		return 0, err
	}
	log = append(log, e)
	if err := s.save(ctx, slug, log); err != nil {
		return 0, err
	}
	return len(log) - 1, nil
}

// Replace implements Store.
func (s *ObjectStore) Replace(ctx context.Context, slug string, index int, e assistant.Exchange) error {
	log, err := s.Load(ctx, slug)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(log) {
		return assistant.ErrNotFound
	}
	log[index] = e
	return s.save(ctx, slug, log)
}

// Close implements Store.
func (s *ObjectStore) Close() error {
	return nil
}

func (s *ObjectStore) save(ctx context.Context, slug string, log []assistant.Exchange) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return err
	}
	return s.objects.Upload(ctx, s.path(slug), data, "application/json", true)
}

func (s *ObjectStore) path(slug string) string {
	return slug + "/" + documentName
}
