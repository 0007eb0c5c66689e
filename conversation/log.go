// Package conversation maintains the per-tenant conversation log.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/rs/zerolog/log"
)

// LastExchange addresses the most recent entry in UpdateAssistant.
const LastExchange = -1

// Appended is the log state right after AppendUser.
type Appended struct {
	List  []assistant.Exchange
	Index int
}

// Log serializes writes per tenant over a Store. Read failures degrade to an
// empty log and write failures are reported as ok=false, never as errors.
type Log struct {
	store Store
	locks *assistant.TenantLocks
	now   func() time.Time
	loc   *time.Location
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLocation sets the display time zone of entry dates and times.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// NewLog creates a Log over store.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{
		store: store,
		locks: assistant.NewTenantLocks(),
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the full log including trace entries.
func (l *Log) Load(ctx context.Context, slug string) []assistant.Exchange {
	entries, err := l.store.Load(ctx, slug)
	if err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("Conversation log unreadable, treating as empty")
		return []assistant.Exchange{}
	}
	if entries == nil {
		return []assistant.Exchange{}
	}
	return entries
}

// History returns the user-facing turns only.
func (l *Log) History(ctx context.Context, slug string) []assistant.Exchange {
	return assistant.Turns(l.Load(ctx, slug))
}

// AppendUser appends a turn with an empty assistant reply and returns its
// index. Blank text and store failures yield ok=false.
func (l *Log) AppendUser(ctx context.Context, slug, text string) (Appended, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Appended{}, false
	}

	unlock := l.locks.Lock(slug)
	defer unlock()

	index, err := l.store.Append(ctx, slug, l.stamp(text, "", assistant.KindTurn))
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("Failed to append user message")
		return Appended{}, false
	}
	return Appended{List: l.Load(ctx, slug), Index: index}, true
}

// AppendExchange appends a complete pair.
func (l *Log) AppendExchange(ctx context.Context, slug, user, reply string, kind assistant.ExchangeKind) bool {
	user = strings.TrimSpace(user)
	reply = strings.TrimSpace(reply)
	if user == "" && reply == "" {
		return false
	}

	unlock := l.locks.Lock(slug)
	defer unlock()

	if _, err := l.store.Append(ctx, slug, l.stamp(user, reply, kind)); err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("Failed to append exchange")
		return false
	}
	return true
}

// UpdateAssistant sets the assistant text of the entry at index, or of the
// last entry for LastExchange or an out-of-range index. Blank text and an
// empty log are logged no-ops.
func (l *Log) UpdateAssistant(ctx context.Context, slug, text string, index int) ([]assistant.Exchange, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn().Str("slug", slug).Msg("Skipping empty assistant reply")
		return nil, false
	}

	unlock := l.locks.Lock(slug)
	defer unlock()

	entries, err := l.store.Load(ctx, slug)
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("Failed to load conversation for update")
		return nil, false
	}
	if len(entries) == 0 {
		log.Warn().Str("slug", slug).Msg("No conversation entry to update")
		return entries, false
	}

	if index < 0 || index >= len(entries) {
		if index != LastExchange {
			log.Warn().Str("slug", slug).Int("index", index).Int("len", len(entries)).Msg("Exchange index out of range, updating last entry")
		}
		index = len(entries) - 1
	}

	entry := entries[index]
	entry.Assistant = text
	if err := l.store.Replace(ctx, slug, index, entry); err != nil {
		log.Error().Err(err).Str("slug", slug).Int("index", index).Msg("Failed to update assistant reply")
		return nil, false
	}
	entries[index] = entry
	return entries, true
}

func (l *Log) stamp(user, reply string, kind assistant.ExchangeKind) assistant.Exchange {
	return assistant.NewExchange(user, reply, kind, l.now().In(l.loc))
}
