package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/conversation"
	"github.com/creastat/assistant/logging"
)

// fallbackReply fills the turn when no outcome produced text.
const fallbackReply = "❌ Something went wrong while processing your request."

// Classifier turns an utterance into intents. *llm.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, text string, history []assistant.Exchange) []assistant.Intent
}

// TurnLog is the part of the conversation log a turn needs.
// *conversation.Log implements it.
type TurnLog interface {
	History(ctx context.Context, slug string) []assistant.Exchange
	AppendUser(ctx context.Context, slug, text string) (conversation.Appended, bool)
	UpdateAssistant(ctx context.Context, slug, text string, index int) ([]assistant.Exchange, bool)
}

// TurnResult is what the boundary returns for one utterance.
type TurnResult struct {
	TurnID   string             `json:"turn_id"`
	Reply    Reply              `json:"reply"`
	Actions  []assistant.Intent `json:"actions,omitempty"`
	Outcomes []Outcome          `json:"outcomes"`
}

// Runner executes a full turn: placeholder, classification, dispatch and
// the final reply write.
type Runner struct {
	tenants    assistant.TenantStore
	classifier Classifier
	log        TurnLog
	dispatcher *Dispatcher
}

// NewRunner creates a Runner.
func NewRunner(tenants assistant.TenantStore, classifier Classifier, log TurnLog, dispatcher *Dispatcher) *Runner {
	return &Runner{tenants: tenants, classifier: classifier, log: log, dispatcher: dispatcher}
}

// Run handles one utterance for slug.
func (r *Runner) Run(ctx context.Context, slug, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if !assistant.ValidSlug(slug) {
		return TurnResult{}, fmt.Errorf("%w: invalid slug", assistant.ErrValidation)
	}
	if text == "" {
		return TurnResult{}, fmt.Errorf("%w: empty text", assistant.ErrValidation)
	}

	tenant, err := r.tenants.GetTenant(ctx, slug)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load tenant %s: %w", slug, err)
	}

	ctx, turnID := logging.WithTurnID(ctx, logging.TurnID(ctx))
	logger := logging.Ctx(ctx).With().Str("slug", slug).Logger()

	history := answered(r.log.History(ctx, slug))
	appended, ok := r.log.AppendUser(ctx, slug, text)
	if !ok {
		logger.Warn().Msg("Could not record user message")
	}

	intents := r.classifier.Classify(ctx, text, history)
	logger.Info().Int("intents", len(intents)).Msg("Turn classified")

	outcomes := r.dispatcher.Dispatch(ctx, tenant, text, intents)
	reply := Aggregate(outcomes)
	if reply.Text == "" {
		reply.Text = fallbackReply
	}

	if ok {
		if _, written := r.log.UpdateAssistant(ctx, slug, reply.Text, appended.Index); !written {
			logger.Warn().Int("index", appended.Index).Msg("Could not record reply")
		}
	}

	var actions []assistant.Intent
	for _, o := range outcomes {
		if o.Status == StatusPassThrough {
			actions = append(actions, o.Intent)
		}
	}

	return TurnResult{TurnID: turnID, Reply: reply, Actions: actions, Outcomes: outcomes}, nil
}

// answered drops exchanges still waiting for a reply.
func answered(history []assistant.Exchange) []assistant.Exchange {
	out := make([]assistant.Exchange, 0, len(history))
	for _, e := range history {
		if strings.TrimSpace(e.Assistant) != "" {
			out = append(out, e)
		}
	}
	return out
}
