package blobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/rs/zerolog/log"
)

// Staging is the local per-tenant area generated files pass through before
// they reach a backend.
type Staging struct {
	root string
	now  func() time.Time
}

// NewStaging creates a staging area rooted at root.
func NewStaging(root string) *Staging {
	return &Staging{root: root, now: time.Now}
}

// Dir returns the tenant's staging directory.
func (s *Staging) Dir(slug string) string {
	return filepath.Join(s.root, slug)
}

// CleanName reduces filename to a safe base name.
func CleanName(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid filename %q", assistant.ErrValidation, filename)
	}
	return name, nil
}

// Size returns the total size of the tenant's staged files.
func (s *Staging) Size(slug string) (int64, error) {
	var total int64
	err := s.walk(slug, func(path string, info fs.FileInfo) error {
		total += info.Size()
		return nil
	})
	return total, err
}

// Purge removes staged files older than maxAge and returns how many were removed.
func (s *Staging) Purge(slug string, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	err := s.walk(slug, func(path string, info fs.FileInfo) error {
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			removed++
		}
		return nil
	})
	if removed > 0 {
		log.Info().Str("slug", slug).Int("removed", removed).Msg("Purged aged staged files")
	}
	return removed, err
}

// Write stages data under the tenant directory and returns the file path.
func (s *Staging) Write(slug, filename string, data []byte) (string, error) {
	name, err := CleanName(filename)
	if err != nil {
		return "", err
	}
	dir := s.Dir(slug)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return path, nil
}

// Read returns a staged file's content.
func (s *Staging) Read(slug, filename string) ([]byte, error) {
	name, err := CleanName(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(slug), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, assistant.ErrNotFound
	}
	return data, err
}

// Remove deletes a staged file. A missing file is not an error.
func (s *Staging) Remove(slug, filename string) error {
	name, err := CleanName(filename)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.Dir(slug), name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep purges every tenant directory using the retention returned for its slug.
func (s *Staging) Sweep(retention func(slug string) time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := s.Purge(e.Name(), retention(e.Name()))
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Staging) walk(slug string, fn func(path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(s.Dir(slug))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(filepath.Join(s.Dir(slug), e.Name()), info); err != nil {
			return err
		}
	}
	return nil
}
