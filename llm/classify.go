package llm

import (
	"context"
	"strings"

	"github.com/creastat/assistant"
	"github.com/rs/zerolog/log"
)

// classifierPrompt asks the model for a JSON array of intents.
const classifierPrompt = `You route requests for a classroom assistant. Read the user's message and reply with ONLY a JSON array of intents, no prose.
Each element is {"intent": "<name>", "parameters": {"prompt": "<what to produce>", ...}}.
Known intents:
- chat: general conversation or questions
- image: generate a picture
- video: generate a short video clip
- ppt: make a slide presentation (parameters: prompt, slides)
- docx: write a document
- note, planner, timetable, task: study material for a student
- lesson_plan, exam_paper, grading_sheet, class_planner, teacher_note: teaching material (parameters: prompt, subject, teacher_name)
- music: play a song (parameters: query)
- transcribe: transcribe audio (parameters: audioUrl)
- reminder, alarm, period_bell, emergency_alarm, fire_alarm, stop_alarm: device actions (parameters: time, label)
A message may contain several requests; emit one element per request, in the order asked.`

// Classifier turns an utterance into structured intents.
type Classifier struct {
	completer Completer
	prompt    string
}

// NewClassifier creates a classifier. An empty prompt selects the built-in one.
func NewClassifier(c Completer, prompt string) *Classifier {
	if prompt == "" {
		prompt = classifierPrompt
	}
	return &Classifier{completer: c, prompt: prompt}
}

// Classify returns at least one intent. Completion failures and malformed
// output yield a single chat intent carrying the raw text.
func (c *Classifier) Classify(ctx context.Context, text string, history []assistant.Exchange) []assistant.Intent {
	out, err := c.completer.Complete(ctx, c.prompt, HistoryLines(history), text)
	if err != nil {
		log.Warn().Err(err).Msg("Intent classification failed, treating as chat")
		return assistant.ParseIntents("", text)
	}
	return assistant.ParseIntents(out, text)
}

// HistoryLines renders exchanges as prompt context.
func HistoryLines(history []assistant.Exchange) []string {
	lines := make([]string, 0, len(history)*2)
	for _, e := range history {
		if u := strings.TrimSpace(e.User); u != "" {
			lines = append(lines, "User: "+u)
		}
		if a := strings.TrimSpace(e.Assistant); a != "" {
			lines = append(lines, "Assistant: "+a)
		}
	}
	return lines
}
