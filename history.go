package assistant

import "time"

// ExchangeKind distinguishes user-facing turns from per-intent trace entries.
type ExchangeKind string

const (
	KindTurn  ExchangeKind = ""
	KindTrace ExchangeKind = "trace"
)

// Display formats for Exchange.Date and Exchange.Time.
const (
	DateLayout = "02 Jan 2006"
	TimeLayout = "03:04 PM"
)

// Exchange is one user/assistant pair in a conversation log.
type Exchange struct {
	User      string       `json:"user"`
	Assistant string       `json:"assistant"`
	Date      string       `json:"date"`
	Time      string       `json:"time"`
	Kind      ExchangeKind `json:"kind,omitempty"`
}

// NewExchange stamps a pair with the given instant.
func NewExchange(user, assistant string, kind ExchangeKind, at time.Time) Exchange {
	return Exchange{
		User:      user,
		Assistant: assistant,
		Date:      at.Format(DateLayout),
		Time:      at.Format(TimeLayout),
		Kind:      kind,
	}
}

// IsTrace reports whether the entry is a per-intent record.
func (e Exchange) IsTrace() bool {
	return e.Kind == KindTrace
}

// Turns returns only the user-facing entries.
func Turns(log []Exchange) []Exchange {
	out := make([]Exchange, 0, len(log))
	for _, e := range log {
		if !e.IsTrace() {
			out = append(out, e)
		}
	}
	return out
}

// TruncateHistory keeps the most recent exchanges within both limits.
// The message limit is applied first, then the token limit, dropping the
// oldest entries.
func TruncateHistory(history []Exchange, tokenLimit, messageLimit int) []Exchange {
	if len(history) == 0 {
		return history
	}

	if messageLimit > 0 && len(history) > messageLimit {
		history = history[len(history)-messageLimit:]
	}

	totalTokens := 0
	for _, e := range history {
		totalTokens += e.Tokens()
	}

	for tokenLimit > 0 && totalTokens > tokenLimit && len(history) > 0 {
		totalTokens -= history[0].Tokens()
		history = history[1:]
	}

	return history
}

// Tokens estimates the token count of both sides of the exchange.
func (e Exchange) Tokens() int {
	return EstimateTokens(e.User) + EstimateTokens(e.Assistant)
}

// EstimateTokens estimates the token count for a given text using a Unicode-aware heuristic.
// ASCII characters are weighted at ~4 per token, everything else at ~1 per token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		switch {
		case r <= 127:
			weight += 1
		default:
			weight += 4
		}
	}
	return (weight + 3) / 4
}
