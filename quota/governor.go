// Package quota enforces per-tenant daily allowances for metered features.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/metrics"
	"github.com/rs/zerolog/log"
)

// Decision is the result of a check-and-consume call.
type Decision struct {
	OK      bool
	Used    int64
	Allowed int64
}

// Err returns a QuotaExceededError for a denied decision, nil otherwise.
func (d Decision) Err(feature Feature) error {
	if d.OK {
		return nil
	}
	return &assistant.QuotaExceededError{Feature: string(feature), Used: d.Used, Allowed: d.Allowed}
}

// FeatureUsage is today's usage of one feature.
type FeatureUsage struct {
	Feature Feature `json:"feature"`
	Used    int64   `json:"used"`
	Allowed int64   `json:"allowed"`
}

// Governor enforces daily allowances. Check and consume happen atomically
// per tenant: an in-process lock orders local callers and the store's Update
// is itself atomic across processes.
type Governor struct {
	store      Store
	allowances Allowances
	locks      *assistant.TenantLocks
	now        func() time.Time
	metrics    *metrics.Metrics
}

// Option configures a Governor.
type Option func(*Governor)

// WithAllowances replaces the allowance table.
func WithAllowances(a Allowances) Option {
	return func(g *Governor) {
		g.allowances = a
	}
}

// WithClock sets the time source used to derive the day key.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Governor) {
		g.metrics = m
	}
}

// NewGovernor creates a governor backed by store.
func NewGovernor(store Store, opts ...Option) *Governor {
	g := &Governor{
		store:      store,
		allowances: DefaultAllowances,
		locks:      assistant.NewTenantLocks(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAndConsume grants amount units of feature when today's usage plus
// amount stays within the tier allowance, persisting the new total before
// returning. A denial writes nothing.
func (g *Governor) CheckAndConsume(ctx context.Context, slug string, tier assistant.Tier, feature Feature, amount int64) (Decision, error) {
	if amount <= 0 {
		return Decision{}, fmt.Errorf("%w: amount must be positive, got %d", assistant.ErrValidation, amount)
	}

	allowed := g.allowances.Allowed(tier, feature)
	day := DayKey(g.now())

	unlock := g.locks.Lock(slug)
	defer unlock()

	var decision Decision
	err := g.store.Update(ctx, slug, func(ledger Ledger) bool {
		used := ledger.Used(day, feature)
		if used+amount > allowed {
			decision = Decision{OK: false, Used: used, Allowed: allowed}
			return false
		}
		ledger.Add(day, feature, amount)
		decision = Decision{OK: true, Used: used + amount, Allowed: allowed}
		return true
	})
	if err != nil {
		return Decision{}, fmt.Errorf("quota %s/%s: %w", slug, feature, err)
	}

	if g.metrics != nil {
		g.metrics.RecordQuota(string(feature), decision.OK)
	}
	log.Debug().
		Str("slug", slug).
		Str("feature", string(feature)).
		Str("tier", tier.String()).
		Int64("used", decision.Used).
		Int64("allowed", decision.Allowed).
		Bool("ok", decision.OK).
		Msg("Quota decision")

	return decision, nil
}

// Usage returns today's usage for every metered feature.
func (g *Governor) Usage(ctx context.Context, slug string, tier assistant.Tier) ([]FeatureUsage, error) {
	ledger, err := g.store.Load(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("quota usage %s: %w", slug, err)
	}

	day := DayKey(g.now())
	out := make([]FeatureUsage, 0, len(Features()))
	for _, f := range Features() {
		out = append(out, FeatureUsage{
			Feature: f,
			Used:    ledger.Used(day, f),
			Allowed: g.allowances.Allowed(tier, f),
		})
	}
	return out, nil
}
