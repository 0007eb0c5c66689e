// Package llm provides language-model completion and intent classification.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/rs/zerolog/log"
)

const (
	geminiAPIURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemma-3-12b-it"
	defaultRotations   = 2
)

// BusyMessage is shown when every credential is overloaded.
const BusyMessage = "Servers are busy right now. Please try again in a few moments."

// Completer produces a completion for a user message given a system prompt
// and prior conversation lines.
type Completer interface {
	Complete(ctx context.Context, system string, history []string, user string) (string, error)
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	Model   string
	BaseURL string
	// Rotations bounds how many times a busy credential is rotated per call.
	Rotations int
	Timeout   time.Duration
}

// GeminiClient calls the Gemini generateContent API, rotating through the
// key pool when a key is overloaded, rate-limited or suspended.
type GeminiClient struct {
	pool      *KeyPool
	model     string
	baseURL   string
	rotations int
	client    *http.Client
}

// NewGeminiClient creates a client over pool.
func NewGeminiClient(pool *KeyPool, cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Rotations <= 0 {
		cfg.Rotations = defaultRotations
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{
		pool:      pool,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		rotations: cfg.Rotations,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ComposePrompt folds the system prompt and history into a single user turn.
// Gemma models reject system instructions, so everything travels as text.
func ComposePrompt(system string, history []string, user string) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Previous Context:\n")
		b.WriteString(strings.Join(history, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("User Says: ")
	b.WriteString(user)
	return b.String()
}

// Complete implements Completer.
func (c *GeminiClient) Complete(ctx context.Context, system string, history []string, user string) (string, error) {
	if c.pool.Len() == 0 {
		return "", fmt.Errorf("%w: no gemini API keys configured", assistant.ErrInvalidConfig)
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: ComposePrompt(system, history, user)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.rotations; attempt++ {
		idx, key := c.pool.Current()
		text, busy, err := c.generate(ctx, key, body)
		if err == nil {
			return text, nil
		}
		if !busy {
			return "", &assistant.ProviderError{Provider: "gemini", Err: err}
		}
		lastErr = err
		c.pool.Advance(idx)
		log.Warn().Err(err).Int("key_index", idx).Int("attempt", attempt).Msg("Gemini key busy, rotating")
	}

	return "", &assistant.ProviderError{Provider: "gemini", Reason: "all keys busy", Err: lastErr}
}

func (c *GeminiClient) generate(ctx context.Context, key string, body []byte) (text string, busy bool, err error) {
	u := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := string(respBody)
		var errResp geminiError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			errMsg = errResp.Error.Message
		}
		return "", isBusy(resp.StatusCode, errMsg), fmt.Errorf("API error (%d): %s", resp.StatusCode, errMsg)
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", false, fmt.Errorf("no candidates in response")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), false, nil
}

func isBusy(status int, msg string) bool {
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "overloaded") || strings.Contains(lower, "suspended")
}

var _ Completer = (*GeminiClient)(nil)
