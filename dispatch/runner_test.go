package dispatch

import (
	"context"
	"testing"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	intents []assistant.Intent
	history []assistant.Exchange
}

func (s *stubClassifier) Classify(ctx context.Context, text string, history []assistant.Exchange) []assistant.Intent {
	s.history = history
	return s.intents
}

func newRunner(t *testing.T, cls Classifier, h Handlers) (*Runner, *conversation.Log) {
	t.Helper()
	tenants := assistant.NewMemoryTenantStore(assistant.Tenant{Slug: "42"})
	log := conversation.NewLog(conversation.NewMemoryStore())
	d := New(DefaultRegistry(h), newGovernor(), WithTraceLog(log))
	return NewRunner(tenants, cls, log, d), log
}

func TestRunFillsPlaceholderWithAggregatedReply(t *testing.T) {
	cls := &stubClassifier{intents: intents("alarm", "chat")}
	r, log := newRunner(t, cls, Handlers{Chat: text("Sure, alarm set.")})
	ctx := context.Background()

	require.True(t, log.AppendExchange(ctx, "42", "earlier", "answer", assistant.KindTurn))
	_, ok := log.AppendUser(ctx, "42", "abandoned")
	require.True(t, ok)

	res, err := r.Run(ctx, "42", "  wake me at 7 and say hi  ")
	require.NoError(t, err)

	assert.NotEmpty(t, res.TurnID)
	assert.Equal(t, "Sure, alarm set.", res.Reply.Text)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "alarm", res.Actions[0].Name)
	require.Len(t, res.Outcomes, 2)

	// Only answered turns reach the classifier.
	require.Len(t, cls.history, 1)
	assert.Equal(t, "earlier", cls.history[0].User)

	history := log.History(ctx, "42")
	require.Len(t, history, 3)
	assert.Equal(t, "wake me at 7 and say hi", history[2].User)
	assert.Equal(t, "Sure, alarm set.", history[2].Assistant)
	assert.Empty(t, history[1].Assistant, "other turns are not touched")

	all := log.Load(ctx, "42")
	require.Len(t, all, 5)
	assert.True(t, all[3].IsTrace())
	assert.True(t, all[4].IsTrace())
}

func TestRunFallsBackWhenNothingReplies(t *testing.T) {
	r, log := newRunner(t, &stubClassifier{intents: []assistant.Intent{}}, Handlers{})

	res, err := r.Run(context.Background(), "42", "hello")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, res.Reply.Text)

	history := log.History(context.Background(), "42")
	require.Len(t, history, 1)
	assert.Equal(t, fallbackReply, history[0].Assistant)
}

func TestRunValidatesInput(t *testing.T) {
	r, _ := newRunner(t, &stubClassifier{}, Handlers{})

	_, err := r.Run(context.Background(), "abc", "hello")
	assert.ErrorIs(t, err, assistant.ErrValidation)

	_, err = r.Run(context.Background(), "42", "   ")
	assert.ErrorIs(t, err, assistant.ErrValidation)

	_, err = r.Run(context.Background(), "77", "hello")
	assert.ErrorIs(t, err, assistant.ErrNotFound)
}
