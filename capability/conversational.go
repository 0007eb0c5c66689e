package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
)

const (
	defaultPersona = "You are RK AI, a friendly classroom assistant. Reply clearly in 1-2 lines."

	chatTokenLimit   = 2000
	chatMessageLimit = 20
)

// Chat answers conversationally using the tenant's recent history.
type Chat struct {
	llm     llm.Completer
	history HistorySource
	persona string
}

// NewChat creates the chat handler. An empty persona selects the default one.
func NewChat(c llm.Completer, history HistorySource, persona string) *Chat {
	if persona == "" {
		persona = defaultPersona
	}
	return &Chat{llm: c, history: history, persona: persona}
}

func (h *Chat) Handle(ctx context.Context, req Request) (Result, error) {
	var lines []string
	if h.history != nil {
		// The open turn has no reply yet and would repeat the prompt.
		past := make([]assistant.Exchange, 0)
		for _, e := range h.history.History(ctx, req.Slug) {
			if strings.TrimSpace(e.Assistant) != "" {
				past = append(past, e)
			}
		}
		lines = llm.HistoryLines(assistant.TruncateHistory(past, chatTokenLimit, chatMessageLimit))
	}

	reply, err := h.llm.Complete(ctx, h.persona, lines, req.Prompt)
	if err != nil {
		return Result{}, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Result{}, &assistant.ProviderError{Provider: "llm", Reason: "empty completion"}
	}
	return Result{Text: reply}, nil
}

// Music finds a track and returns its stream link.
type Music struct {
	search MusicSearcher
}

// NewMusic creates the music handler.
func NewMusic(search MusicSearcher) *Music {
	return &Music{search: search}
}

func (h *Music) Handle(ctx context.Context, req Request) (Result, error) {
	query := paramOr(req.Intent, "query", req.Prompt)
	track, err := h.search.Search(ctx, query)
	if errors.Is(err, assistant.ErrNotFound) {
		return Result{Text: "⚠️ I couldn't find that song."}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("🎶 Now playing: %s\n🔗 Stream: %s", query, track.URL),
		Link: track.URL,
	}, nil
}

// Transcribe converts the audio at the intent's audioUrl parameter to text.
type Transcribe struct {
	transcriber Transcriber
}

// NewTranscribe creates the transcription handler.
func NewTranscribe(t Transcriber) *Transcribe {
	return &Transcribe{transcriber: t}
}

func (h *Transcribe) Handle(ctx context.Context, req Request) (Result, error) {
	url := req.Intent.Param("audioUrl")
	if url == "" {
		return Result{}, fmt.Errorf("%w: transcribe needs an audioUrl", assistant.ErrValidation)
	}
	text, err := h.transcriber.Transcribe(ctx, url)
	if err != nil {
		return Result{}, err
	}
	if text = strings.TrimSpace(text); text == "" {
		return Result{Text: "❌ Could not transcribe audio."}, nil
	}
	return Result{Text: text}, nil
}
