package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creastat/assistant"
)

const defaultYouTubeURL = "https://www.googleapis.com/youtube/v3"

// Track is a music search hit.
type Track struct {
	Title string
	URL   string
}

// YouTube searches for playable music videos.
type YouTube struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewYouTube creates the music search adapter.
func NewYouTube(baseURL, apiKey string) *YouTube {
	if baseURL == "" {
		baseURL = defaultYouTubeURL
	}
	return &YouTube{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Search returns the top video for query, or assistant.ErrNotFound.
func (y *YouTube) Search(ctx context.Context, query string) (Track, error) {
	q := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"maxResults": {"1"},
		"q":          {query},
	}
	req, err := newRequest(ctx, http.MethodGet, y.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Track{}, err
	}
	req.Header.Set("x-goog-api-key", y.apiKey)

	var out struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := doJSON(y.client, req, &out); err != nil {
		return Track{}, &assistant.ProviderError{Provider: "youtube", Err: err}
	}
	if len(out.Items) == 0 || out.Items[0].ID.VideoID == "" {
		return Track{}, assistant.ErrNotFound
	}
	item := out.Items[0]
	return Track{
		Title: item.Snippet.Title,
		URL:   "https://www.youtube.com/watch?v=" + item.ID.VideoID,
	}, nil
}
