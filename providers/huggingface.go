package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/creastat/assistant/jobpoll"
)

const defaultVideoURL = "https://router.huggingface.co/models/Lightricks/LTX-Video"

// HuggingFaceConfig configures the video adapter.
type HuggingFaceConfig struct {
	Endpoint string
	Token    string
	Frames   int
	FPS      int
	Poller   jobpoll.Poller
}

// HuggingFace generates short clips through the inference router. The
// endpoint answers synchronously but replies 503/429 while the model loads,
// so each poll re-issues the request.
type HuggingFace struct {
	endpoint string
	token    string
	frames   int
	fps      int
	poller   jobpoll.Poller
	client   *http.Client
}

// NewHuggingFace creates the video adapter.
func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultVideoURL
	}
	if cfg.Frames == 0 {
		cfg.Frames = 16
	}
	if cfg.FPS == 0 {
		cfg.FPS = 8
	}
	p := cfg.Poller
	p.Provider = "huggingface"
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 6
	}
	if p.Backoff == (jobpoll.Backoff{}) {
		p.Backoff = jobpoll.Backoff{Interval: 5 * time.Second, Initial: 5 * time.Second, Multiplier: 2, Max: 20 * time.Second}
	}
	return &HuggingFace{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		frames:   cfg.Frames,
		fps:      cfg.FPS,
		poller:   p,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type videoRequest struct {
	Inputs struct {
		Prompt    string `json:"prompt"`
		NumFrames int    `json:"num_frames"`
		FPS       int    `json:"fps"`
	} `json:"inputs"`
}

// GenerateVideo requests a clip and waits while the model is loading.
func (h *HuggingFace) GenerateVideo(ctx context.Context, prompt string) (jobpoll.Payload, error) {
	var body videoRequest
	body.Inputs.Prompt = prompt
	body.Inputs.NumFrames = h.frames
	body.Inputs.FPS = h.fps

	return jobpoll.Await(ctx, h.poller,
		func(ctx context.Context) (videoRequest, error) { return body, nil },
		h.poll,
	)
}

func (h *HuggingFace) poll(ctx context.Context, body videoRequest) (jobpoll.Observation, error) {
	req, err := newRequest(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return jobpoll.Observation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Accept", "*/*")

	data, contentType, err := do(h.client, req, maxDownloadBytes)
	var se *statusError
	if errors.As(err, &se) {
		if se.busy() {
			return jobpoll.Observation{Status: jobpoll.Retrying, RetryAfter: se.RetryAfter}, nil
		}
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: se.Error()}, nil
	}
	if err != nil {
		return jobpoll.Observation{}, err
	}
	return decodeVideo(data, contentType), nil
}

// decodeVideo reads the inference response: raw clip bytes, or a JSON
// document carrying video_url.
func decodeVideo(data []byte, contentType string) jobpoll.Observation {
	if !strings.Contains(contentType, "application/json") {
		ct := contentType
		if ct == "" {
			ct = "video/mp4"
		}
		return jobpoll.Observation{Status: jobpoll.Completed, Payload: jobpoll.Payload{Data: data, ContentType: ct}}
	}

	var out struct {
		VideoURL string `json:"video_url"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: "undecodable response"}
	}
	if out.VideoURL == "" {
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: "response missing video_url"}
	}
	return jobpoll.Observation{Status: jobpoll.Completed, Payload: jobpoll.Payload{URL: out.VideoURL, ContentType: "video/mp4"}}
}
