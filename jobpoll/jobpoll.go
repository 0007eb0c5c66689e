// Package jobpoll drives submit-then-poll provider jobs to a terminal state
// under a bounded attempt budget.
package jobpoll

import (
	"context"
	"math"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/metrics"
	"github.com/rs/zerolog/log"
)

// Status is the state of a job as reported by one poll.
type Status int

const (
	// Pending means the job is running normally.
	Pending Status = iota
	// Retrying means the provider is busy or rate-limited.
	Retrying
	// Completed means the payload is ready.
	Completed
	// Failed is terminal and is never retried.
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrying:
		return "retrying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Payload is a raw job result: a URL, inline bytes, or both.
type Payload struct {
	URL         string
	Data        []byte
	ContentType string
}

// Observation is the decoded result of one poll.
type Observation struct {
	Status Status
	// RetryAfter is the provider's wait hint for Retrying. Zero means none.
	RetryAfter time.Duration
	Payload    Payload
	Reason     string
}

// Backoff controls waits between polls.
type Backoff struct {
	// Interval is the fixed wait after a Pending poll.
	Interval time.Duration
	// Initial, Multiplier and Max shape the wait after consecutive Retrying polls.
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay returns the wait after the n-th consecutive retry (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(n-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller holds the policy for one provider.
type Poller struct {
	Provider    string
	MaxAttempts int
	Backoff     Backoff
	Sleep       Sleeper
	Metrics     *metrics.Metrics
}

// Await submits a job and polls it until it completes, fails, or exhausts
// MaxAttempts polls. The first poll happens immediately after submit.
// Poll errors count as Retrying observations.
func Await[H any](
	ctx context.Context,
	p Poller,
	submit func(ctx context.Context) (H, error),
	poll func(ctx context.Context, handle H) (Observation, error),
) (Payload, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	handle, err := submit(ctx)
	if err != nil {
		return Payload{}, &assistant.ProviderError{Provider: p.Provider, Reason: "submit", Err: err}
	}

	retries := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		obs, err := poll(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return Payload{}, ctx.Err()
			}
			log.Debug().Err(err).Str("provider", p.Provider).Int("attempt", attempt).Msg("Poll failed, retrying")
			obs = Observation{Status: Retrying}
		}
		p.record(obs.Status)

		switch obs.Status {
		case Completed:
			return obs.Payload, nil
		case Failed:
			return Payload{}, &assistant.ProviderError{Provider: p.Provider, Reason: obs.Reason}
		}

		if attempt == attempts {
			break
		}

		wait := p.Backoff.Interval
		if obs.Status == Retrying {
			retries++
			wait = obs.RetryAfter
			if wait <= 0 {
				wait = p.Backoff.Delay(retries)
			}
		} else {
			retries = 0
		}

		if err := sleep(ctx, wait); err != nil {
			return Payload{}, err
		}
	}

	return Payload{}, &assistant.ProviderTimeoutError{Provider: p.Provider, Attempts: attempts}
}

func (p Poller) record(s Status) {
	if p.Metrics != nil {
		p.Metrics.RecordPoll(p.Provider, s.String())
	}
}
