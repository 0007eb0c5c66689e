// Package capability implements the handlers that fulfil individual intents.
// A handler produces an artifact, a link or a text reply. It never touches
// the quota ledger or the conversation log; the dispatcher owns both.
package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/blobstore"
	"github.com/creastat/assistant/jobpoll"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/providers"
)

// Request is the input of one handler invocation.
type Request struct {
	Slug             string
	Tenant           *assistant.Tenant
	Tier             assistant.Tier
	StorageCeilingMB int64
	Intent           assistant.Intent
	Prompt           string
}

// Result is what a handler produced.
type Result struct {
	// Artifact is the stored filename, empty when nothing was stored.
	Artifact string
	Ref      *blobstore.ArtifactRef
	// Link is an optional side-channel resource for the client.
	Link string
	// Text is a reply for the user. File producers leave it empty and the
	// dispatcher supplies a status line.
	Text string
	// Units is the amount of secondary quota the result consumed, such as
	// the number of slides in a deck.
	Units int64
}

// Handler fulfils one intent type.
type Handler interface {
	Handle(ctx context.Context, req Request) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ArtifactStore persists generated files. *blobstore.Manager implements it.
type ArtifactStore interface {
	Store(ctx context.Context, slug, filename string, data []byte) (blobstore.ArtifactRef, error)
}

// Fetcher downloads provider result URLs. *providers.Downloader implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// ImageGenerator is implemented by *providers.DeAPI.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (jobpoll.Payload, error)
}

// VideoGenerator is implemented by *providers.HuggingFace.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt string) (jobpoll.Payload, error)
}

// Transcriber is implemented by *providers.AssemblyAI.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// MusicSearcher is implemented by *providers.YouTube.
type MusicSearcher interface {
	Search(ctx context.Context, query string) (providers.Track, error)
}

// HistorySource returns a tenant's user-facing exchanges.
// *conversation.Log implements it.
type HistorySource interface {
	History(ctx context.Context, slug string) []assistant.Exchange
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Filename builds "<topic>-<kind>-<unix>.<ext>" with the topic lowercased,
// non-alphanumeric runs collapsed to "-" and cut to 40 characters.
func Filename(topic, kind, ext string, now time.Time) string {
	clean := nonAlnum.ReplaceAllString(strings.ToLower(topic), "-")
	clean = strings.Trim(clean, "-")
	if len(clean) > 40 {
		clean = strings.TrimRight(clean[:40], "-")
	}
	if clean == "" {
		clean = "file"
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("%s-%s-%d.%s", clean, strings.ToLower(kind), now.Unix(), ext)
}

// stampedName builds "<kind>_<YYYYMMDDTHHMMSS>.txt" for study and teaching material.
func stampedName(kind string, now time.Time) string {
	return kind + "_" + now.UTC().Format("20060102T150405") + ".txt"
}

// resolvePayload turns a raw job payload into bytes.
func resolvePayload(ctx context.Context, f Fetcher, p jobpoll.Payload) ([]byte, error) {
	if len(p.Data) > 0 {
		return p.Data, nil
	}
	if p.URL == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher for %s", p.URL)
	}
	data, _, err := f.Fetch(ctx, p.URL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty download from %s", p.URL)
	}
	return data, nil
}

// saver stores handler output and builds the Result.
type saver struct {
	store ArtifactStore
	now   func() time.Time
}

func newSaver(store ArtifactStore, now func() time.Time) saver {
	if now == nil {
		now = time.Now
	}
	return saver{store: store, now: now}
}

func (s saver) save(ctx context.Context, slug, name string, data []byte) (Result, error) {
	ref, err := s.store.Store(ctx, slug, name, data)
	if err != nil {
		return Result{}, fmt.Errorf("store %s: %w", name, err)
	}
	return Result{Artifact: ref.Filename, Ref: &ref}, nil
}

// complete calls the model and rejects blank output.
func complete(ctx context.Context, c llm.Completer, system, prompt string) (string, error) {
	out, err := c.Complete(ctx, system, nil, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &assistant.ProviderError{Provider: "llm", Reason: "empty completion"}
	}
	return out, nil
}
