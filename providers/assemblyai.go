package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creastat/assistant/jobpoll"
)

const defaultAssemblyAIURL = "https://api.assemblyai.com"

// AssemblyAIConfig configures the transcription adapter.
type AssemblyAIConfig struct {
	BaseURL string
	APIKey  string
	Poller  jobpoll.Poller
}

// AssemblyAI transcribes audio with bounded polling.
type AssemblyAI struct {
	baseURL string
	apiKey  string
	poller  jobpoll.Poller
	client  *http.Client
}

// NewAssemblyAI creates the transcription adapter.
func NewAssemblyAI(cfg AssemblyAIConfig) *AssemblyAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAssemblyAIURL
	}
	p := cfg.Poller
	p.Provider = "assemblyai"
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 120
	}
	if p.Backoff == (jobpoll.Backoff{}) {
		p.Backoff = jobpoll.Backoff{Interval: time.Second, Initial: 2 * time.Second, Multiplier: 2, Max: 15 * time.Second}
	}
	return &AssemblyAI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		poller:  p,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Upload sends raw audio and returns a URL the transcription job can read.
func (a *AssemblyAI) Upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := doJSON(a.client, req, &out); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload audio: no upload_url in response")
	}
	return out.UploadURL, nil
}

// Transcribe creates a transcript for audioURL and waits for its text.
func (a *AssemblyAI) Transcribe(ctx context.Context, audioURL string) (string, error) {
	payload, err := jobpoll.Await(ctx, a.poller,
		func(ctx context.Context) (string, error) { return a.submit(ctx, audioURL) },
		a.poll,
	)
	if err != nil {
		return "", err
	}
	return string(payload.Data), nil
}

// TranscribeAudio uploads audio then transcribes it.
func (a *AssemblyAI) TranscribeAudio(ctx context.Context, audio []byte) (string, error) {
	url, err := a.Upload(ctx, audio)
	if err != nil {
		return "", err
	}
	return a.Transcribe(ctx, url)
}

type transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

func (a *AssemblyAI) submit(ctx context.Context, audioURL string) (string, error) {
	body := map[string]any{"audio_url": audioURL, "speech_models": []string{"universal"}}
	req, err := newRequest(ctx, http.MethodPost, a.baseURL+"/v2/transcript", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)

	var out transcript
	if err := doJSON(a.client, req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("no transcript id in response")
	}
	return out.ID, nil
}

func (a *AssemblyAI) poll(ctx context.Context, id string) (jobpoll.Observation, error) {
	req, err := newRequest(ctx, http.MethodGet, a.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return jobpoll.Observation{}, err
	}
	req.Header.Set("Authorization", a.apiKey)

	var out transcript
	err = doJSON(a.client, req, &out)
	var se *statusError
	if errors.As(err, &se) && se.busy() {
		return jobpoll.Observation{Status: jobpoll.Retrying, RetryAfter: se.RetryAfter}, nil
	}
	if err != nil {
		return jobpoll.Observation{}, err
	}

	switch out.Status {
	case "":
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: "response missing status"}, nil
	case "completed":
		return jobpoll.Observation{Status: jobpoll.Completed, Payload: jobpoll.Payload{Data: []byte(out.Text), ContentType: "text/plain"}}, nil
	case "error", "failed":
		reason := out.Error
		if reason == "" {
			reason = "transcription failed"
		}
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: reason}, nil
	}
	return jobpoll.Observation{Status: jobpoll.Pending}, nil
}
