// Package providers adapts external generation services to the job poller.
// Each adapter decodes one fixed response shape into jobpoll observations.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxDownloadBytes bounds artifact downloads.
const maxDownloadBytes = 200 << 20

// ErrTooLarge is returned when a response body exceeds the read limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// statusError is a non-2xx provider response.
type statusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// busy reports whether the provider asked the caller to come back later.
func (e *statusError) busy() bool {
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests
}

func newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and returns the body and content type of a 2xx response.
// Bodies longer than limit fail with ErrTooLarge.
func do(client *http.Client, req *http.Request, limit int64) ([]byte, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, "", &statusError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(msg),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	body, _, err := do(client, req, maxDownloadBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseRetryAfter accepts delay-seconds. HTTP-date values are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Downloader fetches artifact URLs returned by providers.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a Downloader. A nil client selects a default one.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Downloader{client: client, maxBytes: maxDownloadBytes}
}

// Fetch downloads url.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	data, ct, err := do(d.client, req, d.maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	return data, ct, nil
}
