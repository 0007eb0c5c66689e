package jobpoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creastat/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func submitOK(ctx context.Context) (string, error) { return "job-1", nil }

func script(obs ...Observation) func(context.Context, string) (Observation, error) {
	calls := 0
	return func(ctx context.Context, h string) (Observation, error) {
		o := obs[min(calls, len(obs)-1)]
		calls++
		return o, nil
	}
}

func poller(r *recorder, attempts int) Poller {
	return Poller{
		Provider:    "test",
		MaxAttempts: attempts,
		Backoff:     Backoff{Interval: time.Second, Initial: 2 * time.Second, Multiplier: 2, Max: 5 * time.Second},
		Sleep:       r.Sleep,
	}
}

func TestAwaitPendingThenCompleted(t *testing.T) {
	r := &recorder{}
	poll := script(
		Observation{Status: Pending},
		Observation{Status: Pending},
		Observation{Status: Pending},
		Observation{Status: Completed, Payload: Payload{URL: "https://x/y.png"}},
	)

	payload, err := Await(context.Background(), poller(r, 10), submitOK, poll)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", payload.URL)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, r.waits)
}

func TestAwaitAlwaysPendingTimesOut(t *testing.T) {
	r := &recorder{}
	calls := 0
	poll := func(ctx context.Context, h string) (Observation, error) {
		calls++
		return Observation{Status: Pending}, nil
	}

	_, err := Await(context.Background(), poller(r, 4), submitOK, poll)
	require.Error(t, err)
	assert.ErrorIs(t, err, assistant.ErrProviderTimeout)
	assert.Equal(t, 4, calls)
	assert.Len(t, r.waits, 3)
}

func TestAwaitFailedIsImmediate(t *testing.T) {
	r := &recorder{}
	poll := script(Observation{Status: Failed, Reason: "nsfw"})

	_, err := Await(context.Background(), poller(r, 10), submitOK, poll)
	require.Error(t, err)
	assert.ErrorIs(t, err, assistant.ErrProvider)
	assert.NotErrorIs(t, err, assistant.ErrProviderTimeout)
	assert.Contains(t, err.Error(), "nsfw")
	assert.Empty(t, r.waits)
}

func TestAwaitRetryingUsesHintThenExponential(t *testing.T) {
	r := &recorder{}
	poll := script(
		Observation{Status: Retrying, RetryAfter: 7 * time.Second},
		Observation{Status: Retrying},
		Observation{Status: Retrying},
		Observation{Status: Retrying},
		Observation{Status: Pending},
		Observation{Status: Retrying},
		Observation{Status: Completed},
	)

	_, err := Await(context.Background(), poller(r, 10), submitOK, poll)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		7 * time.Second, // provider hint
		4 * time.Second, // 2s * 2^1
		5 * time.Second, // capped
		5 * time.Second,
		time.Second,     // pending resets the retry run
		2 * time.Second,
	}, r.waits)
}

func TestAwaitPollErrorsAreRetried(t *testing.T) {
	r := &recorder{}
	calls := 0
	poll := func(ctx context.Context, h string) (Observation, error) {
		calls++
		if calls < 3 {
			return Observation{}, errors.New("connection reset")
		}
		return Observation{Status: Completed, Payload: Payload{Data: []byte("ok")}}, nil
	}

	payload, err := Await(context.Background(), poller(r, 5), submitOK, poll)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), payload.Data)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, r.waits)
}

func TestAwaitSubmitError(t *testing.T) {
	submit := func(ctx context.Context) (string, error) { return "", errors.New("401") }
	poll := func(ctx context.Context, h string) (Observation, error) {
		t.Fatal("poll must not run")
		return Observation{}, nil
	}
	_, err := Await(context.Background(), poller(&recorder{}, 3), submit, poll)
	assert.ErrorIs(t, err, assistant.ErrProvider)
}

func TestAwaitContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poll := func(ctx context.Context, h string) (Observation, error) {
		return Observation{Status: Pending}, nil
	}
	p := Poller{Provider: "test", MaxAttempts: 3, Backoff: Backoff{Interval: time.Hour}}
	_, err := Await(ctx, p, submitOK, poll)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 5 * time.Second, Multiplier: 1, Max: 20 * time.Second}
	assert.Equal(t, 5*time.Second, b.Delay(0))
	assert.Equal(t, 5*time.Second, b.Delay(4))

	b = Backoff{Initial: time.Second, Multiplier: 3}
	assert.Equal(t, 9*time.Second, b.Delay(3))
}
