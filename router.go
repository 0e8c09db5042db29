package aipostblog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// settleTimeout bounds the ledger and history writes made after a generation.
const settleTimeout = 5 * time.Second

// PlanSource resolves a user's plan tier.
type PlanSource interface {
	PlanFor(ctx context.Context, userID string) (PlanTier, error)
}

// StaticPlan is a PlanSource that returns the same tier for every user.
type StaticPlan PlanTier

func (p StaticPlan) PlanFor(context.Context, string) (PlanTier, error) { return PlanTier(p), nil }

// Router selects a model for each generation request, walks its fallback
// chain against the provider adapters and accounts usage in the ledger.
type Router struct {
	registry    *Registry
	templates   TemplateResolver
	selection   *SelectionPolicy
	fallbacks   *FallbackBuilder
	ledger      *Ledger
	plans       PlanSource
	recorder    UsageRecorder
	meter       Meter
	temperature float64
	maxTokens   int
}

// Option configures a Router.
type Option func(*Router)

// WithLedger enables quota admission and accounting.
func WithLedger(l *Ledger) Option {
	return func(r *Router) { r.ledger = l }
}

// WithSelectionPolicy sets the model selection policy.
func WithSelectionPolicy(p *SelectionPolicy) Option {
	return func(r *Router) { r.selection = p }
}

// WithFallbackBuilder sets the fallback chain builder.
func WithFallbackBuilder(b *FallbackBuilder) Option {
	return func(r *Router) { r.fallbacks = b }
}

// WithPlanSource sets how Quota resolves a user's tier (default: free).
func WithPlanSource(s PlanSource) Option {
	return func(r *Router) { r.plans = s }
}

// WithUsageRecorder persists a record for every settled generation.
func WithUsageRecorder(rec UsageRecorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(r *Router) { r.meter = m }
}

// WithGenerationDefaults sets the temperature and output token limit sent to adapters.
func WithGenerationDefaults(temperature float64, maxTokens int) Option {
	return func(r *Router) {
		r.temperature = temperature
		r.maxTokens = maxTokens
	}
}

// NewRouter creates a Router. The built-in selection and fallback tables are
// used unless overridden via options; they must agree with the registry catalog.
func NewRouter(registry *Registry, templates TemplateResolver, opts ...Option) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("aipostblog: registry is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("aipostblog: template resolver is required")
	}

	r := &Router{
		registry:    registry,
		templates:   templates,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.selection == nil {
		r.selection, err = NewSelectionPolicy(registry.Catalog(), DefaultSelectionTable(), TerminalModel)
		if err != nil {
			return nil, err
		}
	}
	if r.fallbacks == nil {
		r.fallbacks, err = NewFallbackBuilder(registry.Catalog(), DefaultFallbackTable(), TerminalModel)
		if err != nil {
			return nil, err
		}
	}
	if r.plans == nil {
		r.plans = StaticPlan(PlanFree)
	}
	if r.meter == nil {
		r.meter = noopMeter{}
	}

	return r, nil
}

// routePlan is everything decided before the first upstream call.
type routePlan struct {
	req       GenerationRequest
	template  Template
	chain     FallbackChain
	estimated int64
	quota     *Quota
	system    string
	prompt    string
}

func (p *routePlan) providerRequest(model string, temperature float64, maxTokens int) ProviderRequest {
	return ProviderRequest{
		Model:        model,
		SystemPrompt: p.system,
		Prompt:       p.prompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}
}

// prepare resolves the template, selects the chain and runs admission control.
// QuotaExceeded is returned before any adapter is touched.
func (r *Router) prepare(ctx context.Context, req GenerationRequest, tier PlanTier) (*routePlan, error) {
	tmpl, err := r.templates.Resolve(req.ContentType, req.TemplateID)
	if err != nil {
		return nil, err
	}

	primary := r.selection.Select(tier, req.ContentType, req.Model)
	p := &routePlan{
		req:       req,
		template:  tmpl,
		chain:     r.fallbacks.Build(primary),
		estimated: EstimateTokens(req.Input),
		system:    tmpl.SystemPrompt,
		prompt:    tmpl.Prompt(req.Input, req.Options),
	}

	if r.ledger != nil && req.UserID != "" {
		q, ok, err := r.ledger.CheckAndReserve(ctx, req.UserID, tier, p.estimated)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &QuotaExceededError{
				UserID:    req.UserID,
				Remaining: q.Remaining(),
				Estimated: p.estimated,
			}
		}
		p.quota = &q
	}

	return p, nil
}

// Route performs a blocking generation, trying the fallback chain in order
// until one model succeeds.
func (r *Router) Route(ctx context.Context, req GenerationRequest, tier PlanTier) (GenerationResult, error) {
	plan, err := r.prepare(ctx, req, tier)
	if err != nil {
		return GenerationResult{}, err
	}

	attempts := make([]string, 0, len(plan.chain))
	var lastErr error
	for i, model := range plan.chain {
		if err := ctx.Err(); err != nil {
			return GenerationResult{}, fmt.Errorf("aipostblog: route cancelled after %d attempt(s): %w", len(attempts), err)
		}
		attempts = append(attempts, model)

		adapter, err := r.registry.Resolve(model)
		if err != nil {
			lastErr = err
			r.meter.OnResult(ResultEvent{Model: model, Attempt: i + 1, Error: err})
			continue
		}

		r.meter.OnRoute(RouteEvent{
			Backend:         adapter.Name(),
			Model:           model,
			Attempt:         i + 1,
			ChainLength:     len(plan.chain),
			EstimatedTokens: plan.estimated,
		})

		start := time.Now()
		resp, err := adapter.Generate(ctx, plan.providerRequest(model, r.temperature, r.maxTokens))
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			r.meter.OnResult(ResultEvent{
				Backend:  adapter.Name(),
				Model:    model,
				Attempt:  i + 1,
				Duration: duration,
				Error:    err,
			})
			continue
		}

		usage := Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
		if usage.Total() == 0 {
			usage = plan.estimateUsage(resp.Content)
		}
		cost := r.cost(model, usage)

		r.meter.OnResult(ResultEvent{
			Backend:  adapter.Name(),
			Model:    model,
			Attempt:  i + 1,
			Success:  true,
			Duration: duration,
			Usage:    usage,
			Cost:     cost,
		})

		finish := resp.FinishReason
		if finish == "" {
			finish = FinishStop
		}
		result := GenerationResult{
			ID:           uuid.New().String(),
			Content:      resp.Content,
			Model:        model,
			EchoedModel:  resp.Model,
			Backend:      adapter.Name(),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			FinishReason: finish,
			Attempts:     attempts,
			Cost:         cost,
		}
		result.Quota = r.settle(ctx, plan, settlement{
			id:       result.ID,
			model:    model,
			usage:    usage,
			output:   resp.Content,
			attempts: attempts,
		})
		return result, nil
	}

	return GenerationResult{}, &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// RouteStream opens a streaming generation. Models whose adapter cannot
// stream are skipped. A model whose stream fails before its first token is
// replaced by the next one; after that the stream is committed to the model.
func (r *Router) RouteStream(ctx context.Context, req GenerationRequest, tier PlanTier) (*RouterStream, error) {
	plan, err := r.prepare(ctx, req, tier)
	if err != nil {
		return nil, err
	}

	attempts := make([]string, 0, len(plan.chain))
	var lastErr error
	candidates := 0
	for _, model := range plan.chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aipostblog: route cancelled after %d attempt(s): %w", len(attempts), err)
		}

		adapter, err := r.registry.Resolve(model)
		if err != nil {
			attempts = append(attempts, model)
			lastErr = err
			r.meter.OnResult(ResultEvent{Model: model, Attempt: len(attempts), Streaming: true, Error: err})
			continue
		}
		if !adapter.Capabilities().Streaming {
			continue
		}
		candidates++
		attempts = append(attempts, model)

		r.meter.OnRoute(RouteEvent{
			Backend:         adapter.Name(),
			Model:           model,
			Attempt:         len(attempts),
			ChainLength:     len(plan.chain),
			EstimatedTokens: plan.estimated,
			Streaming:       true,
		})

		start := time.Now()
		first, inner, err := openStream(ctx, adapter, plan.providerRequest(model, r.temperature, r.maxTokens))
		if err != nil {
			lastErr = err
			r.meter.OnResult(ResultEvent{
				Backend:   adapter.Name(),
				Model:     model,
				Attempt:   len(attempts),
				Streaming: true,
				Duration:  time.Since(start),
				Error:     err,
			})
			continue
		}

		return &RouterStream{
			router:   r,
			ctx:      ctx,
			plan:     plan,
			inner:    inner,
			pending:  &first,
			backend:  adapter.Name(),
			model:    model,
			attempts: attempts,
			start:    start,
			id:       uuid.New().String(),
		}, nil
	}

	if candidates == 0 {
		lastErr = errors.Join(ErrStreamingUnsupported, lastErr)
	}
	return nil, &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// openStream opens a stream and reads its first event. A stream whose first
// event is an error has emitted nothing and counts as a setup failure.
func openStream(ctx context.Context, adapter Provider, req ProviderRequest) (StreamEvent, ProviderStream, error) {
	stream, err := adapter.Stream(ctx, req)
	if err != nil {
		return StreamEvent{}, nil, err
	}

	first, err := stream.Next()
	if err == nil && first.Type == EventError {
		err = NewProviderError(adapter.Name(), req.Model, KindUnavailable, 0, first.Message, nil)
	}
	if err != nil {
		_ = stream.Close()
		return StreamEvent{}, nil, err
	}
	return first, stream, nil
}

// settlement is the accounting input of a finished generation.
type settlement struct {
	id       string
	model    string
	usage    Usage
	output   string
	attempts []string
	streamed bool
	partial  bool
}

// settle debits the admitted quota row and records usage. It runs on a
// context detached from the caller so a cancelled request is still charged.
func (r *Router) settle(ctx context.Context, plan *routePlan, s settlement) *Quota {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var updated *Quota
	if plan.quota != nil {
		q, err := r.ledger.Debit(ctx, *plan.quota, s.usage.Total())
		r.meter.OnDebit(DebitEvent{
			UserID:     q.UserID,
			QuotaID:    q.ID,
			Tokens:     s.usage.Total(),
			TokensUsed: q.TokensUsed,
			Total:      q.TokensTotal,
			Partial:    s.partial,
			Error:      err,
		})
		updated = &q
	}

	if r.recorder != nil {
		rec := UsageRecord{
			ID:           s.id,
			UserID:       plan.req.UserID,
			Model:        s.model,
			ContentType:  plan.req.ContentType,
			TemplateID:   plan.template.ID,
			Input:        plan.req.Input,
			Output:       s.output,
			InputTokens:  s.usage.InputTokens,
			OutputTokens: s.usage.OutputTokens,
			Attempts:     s.attempts,
			Streamed:     s.streamed,
			Partial:      s.partial,
			CreatedAt:    time.Now().UTC(),
		}
		if updated != nil {
			rec.QuotaID = updated.ID
		}
		if err := r.recorder.RecordUsage(ctx, rec); err != nil {
			r.meter.OnDebit(DebitEvent{UserID: rec.UserID, QuotaID: rec.QuotaID, Error: fmt.Errorf("record usage: %w", err)})
		}
	}

	return updated
}

// estimateUsage is used when a backend reports no usage.
func (p *routePlan) estimateUsage(output string) Usage {
	return Usage{
		InputTokens:  estimateTextTokens(p.system) + estimateTextTokens(p.prompt),
		OutputTokens: estimateTextTokens(output),
	}
}

func (r *Router) cost(model string, u Usage) decimal.Decimal {
	desc, ok := r.registry.Catalog().Lookup(model)
	if !ok {
		return decimal.Zero
	}
	return EstimateCost(desc, u.InputTokens, u.OutputTokens)
}

// ListModels returns the model catalog.
func (r *Router) ListModels() []ModelDescriptor {
	return r.registry.Catalog().List()
}

// Templates returns the templates available for a content type.
func (r *Router) Templates(contentType ContentType) []Template {
	return r.templates.ByContentType(contentType)
}

// EstimateCost returns the USD cost of the given usage on a catalog model.
func (r *Router) EstimateCost(model string, inputTokens, outputTokens int64) (decimal.Decimal, error) {
	desc, ok := r.registry.Catalog().Lookup(model)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return EstimateCost(desc, inputTokens, outputTokens), nil
}

// Quota returns the user's current quota row, creating it if needed.
func (r *Router) Quota(ctx context.Context, userID string) (Quota, error) {
	if r.ledger == nil {
		return Quota{}, fmt.Errorf("aipostblog: quota accounting is not configured")
	}
	tier, err := r.plans.PlanFor(ctx, userID)
	if err != nil {
		return Quota{}, fmt.Errorf("aipostblog: resolve plan: %w", err)
	}
	return r.ledger.Current(ctx, userID, tier)
}
