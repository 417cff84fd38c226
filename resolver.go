package prompta

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// CallOption adjusts a single invocation.
type CallOption func(*callOptions)

type callOptions struct {
	fresh       bool
	model       string
	temperature float32
}

// WithFreshHistory regenerates the example history for this call even when
// a cached one exists.
func WithFreshHistory() CallOption {
	return func(o *callOptions) { o.fresh = true }
}

// WithModel overrides the model for this call.
func WithModel(model string) CallOption {
	return func(o *callOptions) { o.model = model }
}

// WithTemperature overrides the temperature for this call.
// Use TemperatureZero for a deterministic call.
func WithTemperature(temperature float32) CallOption {
	return func(o *callOptions) { o.temperature = temperature }
}

// invocation flows through the resolve pipeline.
type invocation[I, P any] struct {
	id   string
	opts callOptions

	raw    any
	hasRaw bool

	// Populated by the pipeline stages
	input    I
	prepared P
	history  []HistoryEntry
	messages []Message
	result   *Result
	err      error
}

// fail records err as the invocation's outcome so it survives pipz wrapping.
func (inv *invocation[I, P]) fail(err error) (*invocation[I, P], error) {
	inv.err = err
	return inv, err
}

// Resolver is the callable produced by Resolve. It is safe for concurrent
// use; calls share only the history cache.
type Resolver[I, O any] struct {
	schema *Schema[I]
	cache  *HistoryCache
	exec   func(ctx context.Context, src source[I], opts callOptions) (O, error)
}

// source is the caller's input before validation.
type source[I any] struct {
	input  I
	raw    any
	hasRaw bool
}

// Call runs the pipeline for an already-typed input. When the pipeline has a
// schema the input is still validated against it.
func (r *Resolver[I, O]) Call(ctx context.Context, in I, opts ...CallOption) (O, error) {
	return r.exec(ctx, source[I]{input: in}, collect(opts))
}

// CallRaw runs the pipeline for untyped input, such as JSON bytes or a map.
// Without a schema the value is decoded into I unvalidated.
func (r *Resolver[I, O]) CallRaw(ctx context.Context, raw any, opts ...CallOption) (O, error) {
	return r.exec(ctx, source[I]{raw: raw, hasRaw: true}, collect(opts))
}

// History returns the pipeline's history cache.
func (r *Resolver[I, O]) History() *HistoryCache {
	return r.cache
}

// Schema returns the input schema, or nil.
func (r *Resolver[I, O]) Schema() *Schema[I] {
	return r.schema
}

func collect(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newResolver[I, P, O any](def *definition[I, P], fn ResolveFunc[I, P, O]) *Resolver[I, O] {
	pipeline := pipz.NewSequence("resolve",
		validateStage(def),
		prepareStage(def),
		historyStage(def),
		compileStage(def),
		completeStage(def),
	)

	exec := func(ctx context.Context, src source[I], opts callOptions) (O, error) {
		var zero O
		inv := &invocation[I, P]{
			id:     uuid.New().String(),
			opts:   opts,
			input:  src.input,
			raw:    src.raw,
			hasRaw: src.hasRaw,
		}

		capitan.Info(ctx, ResolveStarted,
			InvocationIDKey.Field(inv.id),
			HistoryFreshKey.Field(flag(inv.opts.fresh)),
		)

		if _, err := pipeline.Process(ctx, inv); err != nil {
			if inv.err != nil {
				err = inv.err
			}
			capitan.Error(ctx, ResolveFailed,
				InvocationIDKey.Field(inv.id),
				ErrorKey.Field(err.Error()),
			)
			return zero, err
		}

		out, err := fn(ctx, &Context[I, P]{
			InvocationID: inv.id,
			Template:     def.template,
			Messages:     inv.messages,
			Result:       inv.result,
			Blocks:       inv.result.Blocks,
			Input:        inv.input,
			Prepared:     inv.prepared,
		})
		if err != nil {
			capitan.Error(ctx, ResolveFailed,
				InvocationIDKey.Field(inv.id),
				ErrorKey.Field(err.Error()),
			)
			return zero, err
		}

		capitan.Info(ctx, ResolveCompleted,
			InvocationIDKey.Field(inv.id),
			BlockCountKey.Field(len(inv.result.Blocks)),
		)
		return out, nil
	}

	return &Resolver[I, O]{
		schema: def.schema,
		cache:  def.cache,
		exec:   exec,
	}
}

func validateStage[I, P any](def *definition[I, P]) pipz.Chainable[*invocation[I, P]] {
	return pipz.Apply("validate", func(_ context.Context, inv *invocation[I, P]) (*invocation[I, P], error) {
		var (
			in  I
			err error
		)
		switch {
		case def.schema != nil && inv.hasRaw:
			in, err = def.schema.Validate(inv.raw)
		case def.schema != nil:
			in, err = def.schema.Validate(inv.input)
		case inv.hasRaw:
			in, err = decodeInput[I](inv.raw)
		default:
			return inv, nil
		}
		if err != nil {
			return inv.fail(err)
		}
		inv.input = in
		return inv, nil
	})
}

func prepareStage[I, P any](def *definition[I, P]) pipz.Chainable[*invocation[I, P]] {
	return pipz.Apply("prepare", func(ctx context.Context, inv *invocation[I, P]) (*invocation[I, P], error) {
		prepared, err := def.prepare(ctx, inv.input)
		if err != nil {
			return inv.fail(&PrepareError{Err: err})
		}
		inv.prepared = prepared
		return inv, nil
	})
}

func historyStage[I, P any](def *definition[I, P]) pipz.Chainable[*invocation[I, P]] {
	var gen func(context.Context) ([]HistoryEntry, error)
	if def.history != nil {
		hc := &HistoryContext[I, P]{
			Template:  def.template,
			Promptify: Promptify[P],
			Prepare:   def.prepare,
		}
		gen = func(ctx context.Context) ([]HistoryEntry, error) {
			return def.history(ctx, hc)
		}
	}

	return pipz.Apply("history", func(ctx context.Context, inv *invocation[I, P]) (*invocation[I, P], error) {
		history, err := def.cache.GetOrGenerate(ctx, inv.opts.fresh, gen)
		if err != nil {
			return inv.fail(err)
		}
		inv.history = history
		return inv, nil
	})
}

func compileStage[I, P any](def *definition[I, P]) pipz.Chainable[*invocation[I, P]] {
	return pipz.Apply("compile", func(_ context.Context, inv *invocation[I, P]) (*invocation[I, P], error) {
		messages, err := CompileMessages(def.template, inv.prepared, inv.history)
		if err != nil {
			return inv.fail(err)
		}
		inv.messages = messages
		return inv, nil
	})
}

// completeStage calls the API and, when a corrector is attached, retries
// exactly once with the corrector's messages.
func completeStage[I, P any](def *definition[I, P]) pipz.Chainable[*invocation[I, P]] {
	invoker := def.client.invoker

	return pipz.Apply("complete", func(ctx context.Context, inv *invocation[I, P]) (*invocation[I, P], error) {
		result, err := invoker.invoke(ctx, inv.exchange(1, inv.messages))
		if err == nil {
			inv.result = result
			return inv, nil
		}
		if def.corrector == nil {
			return inv.fail(err)
		}

		capitan.Info(ctx, CorrectionAttempted,
			InvocationIDKey.Field(inv.id),
			ErrorKey.Field(err.Error()),
		)

		corrected, cerr := def.corrector(ctx, err, slices.Clone(inv.messages), &CorrectionContext[I, P]{
			Template:  def.template,
			Promptify: Promptify[P],
			Prepare:   def.prepare,
			Prepared:  inv.prepared,
		})
		if cerr != nil {
			return inv.fail(&CorrectionError{Cause: err, Err: cerr})
		}

		inv.messages = corrected
		result, err = invoker.invoke(ctx, inv.exchange(2, corrected))
		if err != nil {
			return inv.fail(err)
		}
		inv.result = result
		return inv, nil
	})
}

func (inv *invocation[I, P]) exchange(attempt int, messages []Message) *Exchange {
	return &Exchange{
		InvocationID: inv.id,
		Attempt:      attempt,
		Request: CompletionRequest{
			Model:       inv.opts.model,
			Temperature: inv.opts.temperature,
			Messages:    messages,
		},
	}
}
