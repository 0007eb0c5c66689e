package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creastat/assistant/jobpoll"
)

const (
	defaultDeAPIURL   = "https://api.deapi.ai"
	defaultDeAPIModel = "Flux1schnell"
)

// DeAPIConfig configures the image adapter.
type DeAPIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Poller  jobpoll.Poller
}

// DeAPI generates images through a submit-then-poll job API.
type DeAPI struct {
	baseURL string
	apiKey  string
	model   string
	poller  jobpoll.Poller
	client  *http.Client
}

// NewDeAPI creates the image adapter.
func NewDeAPI(cfg DeAPIConfig) *DeAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultDeAPIModel
	}
	p := cfg.Poller
	p.Provider = "deapi"
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 30
	}
	if p.Backoff == (jobpoll.Backoff{}) {
		p.Backoff = jobpoll.Backoff{Interval: time.Second, Initial: 2 * time.Second, Multiplier: 2, Max: 20 * time.Second}
	}
	return &DeAPI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		poller:  p,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Model          string  `json:"model"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Guidance       float64 `json:"guidance"`
	Steps          int     `json:"steps"`
	Seed           int     `json:"seed"`
}

// deapiEnvelope is the response body of both the submit and the job endpoints.
type deapiEnvelope struct {
	Data struct {
		RequestID string `json:"request_id"`
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
		Error     string `json:"error"`
	} `json:"data"`
}

// GenerateImage submits a txt2img job and waits for its result URL.
func (d *DeAPI) GenerateImage(ctx context.Context, prompt string) (jobpoll.Payload, error) {
	return jobpoll.Await(ctx, d.poller,
		func(ctx context.Context) (string, error) { return d.submit(ctx, prompt) },
		d.poll,
	)
}

func (d *DeAPI) submit(ctx context.Context, prompt string) (string, error) {
	body := txt2imgRequest{
		Prompt:         prompt,
		NegativePrompt: "blur, low quality, distorted",
		Model:          d.model,
		Width:          512,
		Height:         512,
		Guidance:       7.5,
		Steps:          10,
		Seed:           42,
	}

	var env deapiEnvelope
	err := d.call(ctx, http.MethodPost, "/api/v1/client/txt2img", body, &env)
	if err != nil {
		return "", err
	}
	if env.Data.RequestID == "" {
		return "", fmt.Errorf("no request_id in response")
	}
	return env.Data.RequestID, nil
}

func (d *DeAPI) poll(ctx context.Context, id string) (jobpoll.Observation, error) {
	var env deapiEnvelope
	err := d.call(ctx, http.MethodGet, "/api/v1/client/job/"+id, nil, &env)
	var se *statusError
	if errors.As(err, &se) && se.busy() {
		return jobpoll.Observation{Status: jobpoll.Retrying, RetryAfter: se.RetryAfter}, nil
	}
	if err != nil {
		return jobpoll.Observation{}, err
	}

	switch strings.ToLower(env.Data.Status) {
	case "":
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: "response missing data.status"}, nil
	case "completed", "success", "done":
		if env.Data.ResultURL == "" {
			return jobpoll.Observation{Status: jobpoll.Failed, Reason: "response missing data.result_url"}, nil
		}
		return jobpoll.Observation{Status: jobpoll.Completed, Payload: jobpoll.Payload{URL: env.Data.ResultURL, ContentType: "image/jpeg"}}, nil
	case "failed", "error":
		reason := env.Data.Error
		if reason == "" {
			reason = "job failed"
		}
		return jobpoll.Observation{Status: jobpoll.Failed, Reason: reason}, nil
	}
	return jobpoll.Observation{Status: jobpoll.Pending}, nil
}

func (d *DeAPI) call(ctx context.Context, method, path string, body, out any) error {
	req, err := newRequest(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	return doJSON(d.client, req, out)
}
