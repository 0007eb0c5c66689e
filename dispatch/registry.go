package dispatch

import (
	"fmt"
	"strings"

	"github.com/creastat/assistant/capability"
	"github.com/creastat/assistant/quota"
)

// Category decides how an intent is gated and how its outcome ranks when
// the turn's reply is chosen.
type Category int

const (
	// PassThrough intents are executed by the device; only the intent is recorded.
	PassThrough Category = iota
	// Gated intents consume a daily allowance before generation.
	Gated
	// Generative intents produce files without an allowance.
	Generative
	// Conversational intents answer in text.
	Conversational
	// Media intents play or transcribe audio.
	Media
)

func (c Category) String() string {
	switch c {
	case PassThrough:
		return "pass_through"
	case Gated:
		return "gated"
	case Generative:
		return "generative"
	case Conversational:
		return "conversational"
	case Media:
		return "media"
	}
	return "unknown"
}

// MarshalText renders the category name in JSON outcomes.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Route binds an intent name to its handling policy.
type Route struct {
	Category Category
	// Feature is the allowance consumed by Gated routes.
	Feature quota.Feature
	// StorageCheck denies the intent when the tenant is at its storage ceiling.
	StorageCheck bool
	Handler      capability.Handler
	// Reply is the status line for handlers that return no text. A %s verb
	// receives the intent's prompt.
	Reply string
}

func (r Route) reply(prompt string) string {
	if r.Reply == "" {
		return "✅ Working on " + prompt
	}
	if strings.Contains(r.Reply, "%s") {
		return fmt.Sprintf(r.Reply, prompt)
	}
	return r.Reply
}

// Registry resolves intent names to routes. It is not safe for concurrent
// registration; build it before serving.
type Registry struct {
	routes map[string]Route
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// Register adds or replaces the route for name.
func (r *Registry) Register(name string, route Route) {
	r.routes[strings.ToLower(name)] = route
}

// Lookup returns the route for name.
func (r *Registry) Lookup(name string) (Route, bool) {
	route, ok := r.routes[strings.ToLower(name)]
	return route, ok
}

// PassThroughIntents lists the device actions recorded without work.
func PassThroughIntents() []string {
	return []string{"reminder", "alarm", "period_bell", "emergency_alarm", "fire_alarm", "stop_alarm"}
}

// Handlers is the set of capability handlers wired into the default registry.
// Nil handlers leave their intents unregistered.
type Handlers struct {
	Image      capability.Handler
	Video      capability.Handler
	Document   capability.Handler
	Deck       capability.Handler
	Study      capability.Handler
	Teacher    capability.Handler
	Chat       capability.Handler
	Music      capability.Handler
	Transcribe capability.Handler
}

var studyReplies = map[string]string{
	"note":      "✅ Creating notes for %s",
	"planner":   "📅 Creating planner for %s",
	"timetable": "🕒 Generating timetable for %s",
	"task":      "📌 Organizing tasks for %s",
}

var teacherReplies = map[string]string{
	"lesson_plan":   "📘 Creating lesson plan for %s",
	"exam_paper":    "📝 Preparing exam paper for %s",
	"grading_sheet": "✅ Creating grading sheet for %s",
	"class_planner": "🏫 Preparing class planner for %s",
	"teacher_note":  "📒 Creating teacher notes for %s",
}

// DefaultRegistry wires the standard intent vocabulary to h.
func DefaultRegistry(h Handlers) *Registry {
	r := NewRegistry()
	for _, name := range PassThroughIntents() {
		r.Register(name, Route{Category: PassThrough})
	}

	add := func(name string, handler capability.Handler, route Route) {
		if handler == nil {
			return
		}
		route.Handler = handler
		r.Register(name, route)
	}

	add("image", h.Image, Route{Category: Gated, Feature: quota.FeatureImage, StorageCheck: true, Reply: "🖼️ Generating image for %s"})
	add("video", h.Video, Route{Category: Gated, Feature: quota.FeatureVideo, StorageCheck: true, Reply: "🎬 Creating video for %s"})
	add("ppt", h.Deck, Route{Category: Gated, Feature: quota.FeaturePPT, StorageCheck: true, Reply: "📽️ Creating presentation for %s"})
	add("docx", h.Document, Route{Category: Generative, StorageCheck: true, Reply: "📄 Creating document for %s"})

	for name, reply := range studyReplies {
		add(name, h.Study, Route{Category: Generative, Reply: reply})
	}
	for name, reply := range teacherReplies {
		add(name, h.Teacher, Route{Category: Generative, Reply: reply})
	}

	add("chat", h.Chat, Route{Category: Conversational})
	add("general", h.Chat, Route{Category: Conversational})
	add("music", h.Music, Route{Category: Media, Reply: "🎵 Playing music for you"})
	add("transcribe", h.Transcribe, Route{Category: Media, Reply: "🎙️ Transcribing your audio"})
	return r
}
