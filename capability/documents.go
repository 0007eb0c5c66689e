package capability

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/creastat/assistant/llm"
	"github.com/rs/zerolog/log"
)

const (
	documentPrompt = "Write detailed, well-structured content on the requested topic. Use short headings starting with '#' and plain paragraphs. Output plain text only."
	deckPrompt     = `Create a professional slide presentation outline for the requested topic. Reply with ONLY JSON of the form {"slides":[{"title":"...","bullets":["...","..."]}]}, 5 to 10 slides, at most 5 bullets each.`

	maxFallbackBullets = 8
)

// Document writes long-form content and stores it as a PDF.
type Document struct {
	llm llm.Completer
	saver
}

// NewDocument creates the document handler.
func NewDocument(c llm.Completer, store ArtifactStore, now func() time.Time) *Document {
	return &Document{llm: c, saver: newSaver(store, now)}
}

func (h *Document) Handle(ctx context.Context, req Request) (Result, error) {
	text, err := complete(ctx, h.llm, documentPrompt, req.Prompt)
	if err != nil {
		return Result{}, err
	}

	now := h.now()
	data, err := renderDocument(req.Prompt, text, now)
	if err != nil {
		return Result{}, err
	}
	return h.save(ctx, req.Slug, Filename(req.Prompt, "document", "pdf", now), data)
}

// Deck builds a slide presentation and stores it as a landscape PDF.
// Result.Units carries the slide count.
type Deck struct {
	llm llm.Completer
	saver
}

// NewDeck creates the presentation handler.
func NewDeck(c llm.Completer, store ArtifactStore, now func() time.Time) *Deck {
	return &Deck{llm: c, saver: newSaver(store, now)}
}

func (h *Deck) Handle(ctx context.Context, req Request) (Result, error) {
	out, err := complete(ctx, h.llm, deckPrompt, req.Prompt)
	if err != nil {
		return Result{}, err
	}

	slides := ParseSlides(out, req.Prompt)
	now := h.now()
	data, err := renderDeck(req.Prompt, slides)
	if err != nil {
		return Result{}, err
	}

	res, err := h.save(ctx, req.Slug, Filename(req.Prompt, "ppt", "pdf", now), data)
	if err != nil {
		return Result{}, err
	}
	res.Units = int64(len(slides))
	log.Info().Str("slug", req.Slug).Str("file", res.Artifact).Int("slides", len(slides)).Msg("Presentation stored")
	return res, nil
}

// ParseSlides decodes the model's outline. Output that is not a usable
// outline becomes a single slide listing its non-empty lines.
func ParseSlides(output, topic string) []Slide {
	body := output
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var deck struct {
		Slides []Slide `json:"slides"`
	}
	if err := json.Unmarshal([]byte(body), &deck); err == nil {
		slides := deck.Slides[:0]
		for _, s := range deck.Slides {
			s.Title = strings.TrimSpace(s.Title)
			if s.Title == "" && len(s.Bullets) == 0 {
				continue
			}
			slides = append(slides, s)
		}
		if len(slides) > 0 {
			return slides
		}
	}

	fallback := Slide{Title: topic}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*#"))
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		fallback.Bullets = append(fallback.Bullets, line)
		if len(fallback.Bullets) == maxFallbackBullets {
			break
		}
	}
	return []Slide{fallback}
}
