package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is one structured action extracted from a user utterance.
type Intent struct {
	Name       string            `json:"intent"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Param returns the named parameter, trimmed.
func (i Intent) Param(key string) string {
	if i.Parameters == nil {
		return ""
	}
	return strings.TrimSpace(i.Parameters[key])
}

// Prompt returns the prompt parameter, or the intent name when none was given.
func (i Intent) Prompt() string {
	if p := i.Param("prompt"); p != "" {
		return p
	}
	return i.Name
}

// UnmarshalJSON accepts non-string parameter values and stringifies them.
func (i *Intent) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name       string         `json:"intent"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	i.Name = strings.ToLower(strings.TrimSpace(raw.Name))
	i.Parameters = nil
	if len(raw.Parameters) > 0 {
		i.Parameters = make(map[string]string, len(raw.Parameters))
		for k, v := range raw.Parameters {
			switch val := v.(type) {
			case nil:
			case string:
				i.Parameters[k] = val
			case float64, bool:
				i.Parameters[k] = fmt.Sprint(val)
			default:
				enc, err := json.Marshal(val)
				if err != nil {
					return err
				}
				i.Parameters[k] = string(enc)
			}
		}
	}
	return nil
}

// IntentChat is the fallback intent for unclassifiable input.
const IntentChat = "chat"

// ParseIntents decodes the model's classification output. It accepts a bare
// array, a single object, or an object with an "intents" field, optionally
// wrapped in a markdown code fence. Anything else yields a single chat intent
// carrying the raw user text.
func ParseIntents(output, userText string) []Intent {
	fallback := []Intent{{Name: IntentChat, Parameters: map[string]string{"prompt": userText}}}

	body := stripCodeFence(output)
	if body == "" {
		return fallback
	}

	var list []Intent
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		return nonEmpty(list, fallback)
	}

	var wrapped struct {
		Intents []Intent `json:"intents"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil && len(wrapped.Intents) > 0 {
		return nonEmpty(wrapped.Intents, fallback)
	}

	var single Intent
	if err := json.Unmarshal([]byte(body), &single); err == nil && single.Name != "" {
		return []Intent{single}
	}
	return fallback
}

func nonEmpty(list, fallback []Intent) []Intent {
	out := list[:0]
	for _, in := range list {
		if in.Name != "" {
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
