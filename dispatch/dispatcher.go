// Package dispatch executes classified intents against capability handlers
// under quota and storage limits, and chooses the turn's single reply.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/capability"
	"github.com/creastat/assistant/logging"
	"github.com/creastat/assistant/metrics"
	"github.com/creastat/assistant/quota"
)

// Status is the terminal state of one intent.
type Status string

const (
	StatusOK          Status = "ok"
	StatusPassThrough Status = "pass_through"
	StatusDenied      Status = "denied"
	StatusFailed      Status = "failed"
	StatusUnsupported Status = "unsupported"
)

// Outcome is the result of one intent, aligned by position with the input.
type Outcome struct {
	Intent   assistant.Intent `json:"intent"`
	Category Category         `json:"category"`
	Status   Status           `json:"status"`
	Text     string           `json:"text,omitempty"`
	Link     string           `json:"link,omitempty"`
	Artifact string           `json:"artifact,omitempty"`
}

// Gate is the quota check consulted before gated intents.
// *quota.Governor implements it.
type Gate interface {
	CheckAndConsume(ctx context.Context, slug string, tier assistant.Tier, feature quota.Feature, amount int64) (quota.Decision, error)
}

// UsageMeter reports a tenant's stored bytes. *blobstore.Manager implements it.
type UsageMeter interface {
	Usage(ctx context.Context, slug string) (int64, error)
}

// TraceLog records per-intent exchanges. *conversation.Log implements it.
type TraceLog interface {
	AppendExchange(ctx context.Context, slug, user, reply string, kind assistant.ExchangeKind) bool
}

// Dispatcher runs a turn's intents in order.
type Dispatcher struct {
	registry *Registry
	gate     Gate
	usage    UsageMeter
	trace    TraceLog
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithUsageMeter enables the storage precheck.
func WithUsageMeter(u UsageMeter) Option {
	return func(d *Dispatcher) {
		d.usage = u
	}
}

// WithTraceLog records every outcome as a trace exchange.
func WithTraceLog(t TraceLog) Option {
	return func(d *Dispatcher) {
		d.trace = t
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher.
func New(registry *Registry, gate Gate, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, gate: gate}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles intents sequentially so later quota checks observe
// earlier consumption. A failing or panicking intent yields a failed outcome
// and never stops the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant *assistant.Tenant, userText string, intents []assistant.Intent) []Outcome {
	outcomes := make([]Outcome, 0, len(intents))
	for _, in := range intents {
		out := d.handle(ctx, tenant, in)
		outcomes = append(outcomes, out)

		if d.metrics != nil {
			d.metrics.RecordDispatch(in.Name, string(out.Status))
		}
		if d.trace != nil && out.Text != "" {
			user := strings.TrimSpace(userText)
			if user == "" {
				user = in.Prompt()
			}
			d.trace.AppendExchange(ctx, tenant.Slug, user, traceText(out), assistant.KindTrace)
		}
	}
	return outcomes
}

// traceText is the recorded assistant side of an outcome. Pass-through
// intents are recorded as the intent itself, as forwarded to the device.
func traceText(out Outcome) string {
	if out.Status != StatusPassThrough {
		return out.Text
	}
	b, err := json.Marshal(out.Intent)
	if err != nil {
		return out.Intent.Name
	}
	return string(b)
}

func (d *Dispatcher) handle(ctx context.Context, tenant *assistant.Tenant, in assistant.Intent) (out Outcome) {
	out = Outcome{Intent: in}
	logger := logging.Ctx(ctx).With().Str("slug", tenant.Slug).Str("intent", in.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Intent handler panicked")
			out.Status = StatusFailed
			out.Text = UserMessage(fmt.Errorf("panic: %v", r))
			out.Link, out.Artifact = "", ""
		}
	}()

	route, ok := d.registry.Lookup(in.Name)
	if !ok {
		out.Status = StatusUnsupported
		out.Text = fmt.Sprintf("Sorry, I can't help with %q yet.", in.Name)
		logger.Warn().Msg("Unsupported intent")
		return out
	}
	out.Category = route.Category

	if route.Category == PassThrough {
		out.Status = StatusPassThrough
		out.Text = "✅ Sent " + strings.ReplaceAll(in.Name, "_", " ") + " to your device"
		return out
	}

	tier := tenant.Tier()
	prompt := in.Prompt()

	if route.StorageCheck && d.usage != nil {
		used, err := d.usage.Usage(ctx, tenant.Slug)
		if err != nil {
			logger.Warn().Err(err).Msg("Storage usage unavailable, skipping precheck")
		} else if used >= tier.StorageCeilingBytes() {
			out.Status = StatusDenied
			out.Text = fmt.Sprintf("❌ Storage limit of %d MB reached.", tier.StorageCeilingMB())
			return out
		}
	}

	if route.Category == Gated {
		dec, err := d.gate.CheckAndConsume(ctx, tenant.Slug, tier, route.Feature, 1)
		if err != nil {
			logger.Error().Err(err).Msg("Quota check failed")
			out.Status = StatusFailed
			out.Text = UserMessage(err)
			return out
		}
		if !dec.OK {
			out.Status = StatusDenied
			out.Text = "❌ Daily " + featureLabel(route.Feature) + " limit reached"
			return out
		}
	}

	res, err := route.Handler.Handle(ctx, capability.Request{
		Slug:             tenant.Slug,
		Tenant:           tenant,
		Tier:             tier,
		StorageCeilingMB: tier.StorageCeilingMB(),
		Intent:           in,
		Prompt:           prompt,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Intent failed")
		out.Status = StatusFailed
		out.Text = UserMessage(err)
		return out
	}

	out.Status = StatusOK
	out.Text = res.Text
	if out.Text == "" {
		out.Text = route.reply(prompt)
	}
	out.Link = res.Link
	out.Artifact = res.Artifact

	if route.Feature == quota.FeaturePPT && res.Units > 0 {
		if warn := d.consumeSlides(ctx, tenant.Slug, tier, res.Units); warn != "" {
			out.Text += "\n" + warn
		}
	}
	return out
}

// consumeSlides charges the generated slide count. The deck already exists,
// so a denial only produces a warning.
func (d *Dispatcher) consumeSlides(ctx context.Context, slug string, tier assistant.Tier, slides int64) string {
	dec, err := d.gate.CheckAndConsume(ctx, slug, tier, quota.FeaturePPTSlides, slides)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("slug", slug).Msg("Slide quota check failed")
		return ""
	}
	if dec.OK {
		return ""
	}
	return fmt.Sprintf("⚠️ Slide limit reached for today (%d). Presentation generated.", dec.Allowed)
}

func featureLabel(f quota.Feature) string {
	if f == quota.FeaturePPT {
		return "presentation"
	}
	return string(f)
}

// UserMessage maps an error to the short text shown to the user.
func UserMessage(err error) string {
	var quotaErr *assistant.QuotaExceededError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &quotaErr):
		return "❌ Daily " + quotaErr.Feature + " limit reached"
	case errors.Is(err, assistant.ErrStorageCapacity):
		return "❌ Storage limit reached. Delete some files or upgrade your plan."
	case errors.Is(err, assistant.ErrProviderTimeout):
		return "⏳ That is taking too long right now. Please try again later."
	case errors.Is(err, assistant.ErrProvider):
		return "❌ The generation service could not complete your request."
	case errors.Is(err, assistant.ErrValidation):
		return "❌ I couldn't understand that request."
	}
	return "❌ Something went wrong while processing your request."
}
