package prompta

import "context"

// PrepareFunc transforms validated input into the value templates render.
type PrepareFunc[I, P any] func(ctx context.Context, in I) (P, error)

// CorrectFunc receives a failed completion and the messages that were sent,
// and returns the messages for the single retry.
type CorrectFunc[I, P any] func(ctx context.Context, err error, attempted []Message, cc *CorrectionContext[I, P]) ([]Message, error)

// CorrectionContext exposes the prompt machinery to a corrector.
type CorrectionContext[I, P any] struct {
	Template  Template[P]
	Promptify PromptifyFunc[P]
	Prepare   PrepareFunc[I, P]
	Prepared  P
}

// ResolveFunc maps a completed invocation to the caller's output.
type ResolveFunc[I, P, O any] func(ctx context.Context, rc *Context[I, P]) (O, error)

// Context is handed to the ResolveFunc of a successful invocation.
type Context[I, P any] struct {
	InvocationID string
	Template     Template[P]
	Messages     []Message
	Result       *Result
	Blocks       Blocks
	Input        I
	Prepared     P
}

// definition is the configuration accumulated by a chain of handles.
// Every transition copies it, so each slot is written once per handle.
type definition[I, P any] struct {
	client    *Client
	schema    *Schema[I]
	prepare   PrepareFunc[I, P]
	template  Template[P]
	history   HistoryFunc[I, P]
	corrector CorrectFunc[I, P]
	cache     *HistoryCache
}

func (d *definition[I, P]) clone() *definition[I, P] {
	cp := *d
	return &cp
}

func identity[I any](_ context.Context, in I) (I, error) {
	return in, nil
}

// Unconfigured is the start of a chain: schema, preparation or prompt may follow.
type Unconfigured[I any] struct {
	def *definition[I, I]
}

// Define starts a pipeline for input type I on client.
func Define[I any](client *Client) *Unconfigured[I] {
	if client == nil {
		panic("prompta: Define called with a nil client")
	}
	return &Unconfigured[I]{def: &definition[I, I]{
		client:  client,
		prepare: identity[I],
	}}
}

// Input sets the schema raw input is validated against.
func (u *Unconfigured[I]) Input(schema *Schema[I]) *InputTyped[I] {
	def := u.def.clone()
	def.schema = schema
	return &InputTyped[I]{def: def}
}

// Prompt sets the template, rendering the validated input directly.
func (u *Unconfigured[I]) Prompt(tmpl Template[I]) *Prompted[I, I] {
	def := u.def.clone()
	def.template = tmpl
	return &Prompted[I, I]{def: def}
}

func (u *Unconfigured[I]) inputStage() *definition[I, I] { return u.def }

// InputTyped has a schema; preparation or prompt may follow.
type InputTyped[I any] struct {
	def *definition[I, I]
}

// Prompt sets the template, rendering the validated input directly.
func (t *InputTyped[I]) Prompt(tmpl Template[I]) *Prompted[I, I] {
	def := t.def.clone()
	def.template = tmpl
	return &Prompted[I, I]{def: def}
}

func (t *InputTyped[I]) inputStage() *definition[I, I] { return t.def }

// Preparable is implemented by the handles that accept a preparation step.
type Preparable[I any] interface {
	inputStage() *definition[I, I]
}

// Prepared has a pre-processor; the prompt must follow.
type Prepared[I, P any] struct {
	def *definition[I, P]
}

// Prepare attaches fn, run on every validated input before rendering.
// It is a function rather than a method because it introduces the type P.
func Prepare[I, P any](stage Preparable[I], fn PrepareFunc[I, P]) *Prepared[I, P] {
	if fn == nil {
		panic("prompta: Prepare called with a nil function")
	}
	src := stage.inputStage()
	return &Prepared[I, P]{def: &definition[I, P]{
		client:  src.client,
		schema:  src.schema,
		prepare: fn,
	}}
}

// Prompt sets the template rendered against the prepared input.
func (p *Prepared[I, P]) Prompt(tmpl Template[P]) *Prompted[I, P] {
	def := p.def.clone()
	def.template = tmpl
	return &Prompted[I, P]{def: def}
}

// Prompted can be resolved, or extended with history and a corrector.
type Prompted[I, P any] struct {
	def *definition[I, P]
}

// History attaches an example-history generator.
func (p *Prompted[I, P]) History(gen HistoryFunc[I, P]) *HistoryAttached[I, P] {
	return &HistoryAttached[I, P]{def: withHistory(p.def, gen)}
}

// Correct attaches the corrector used for the single retry.
func (p *Prompted[I, P]) Correct(fn CorrectFunc[I, P]) *CorrectorAttached[I, P] {
	return &CorrectorAttached[I, P]{def: withCorrector(p.def, fn)}
}

func (p *Prompted[I, P]) resolveStage() *definition[I, P] { return p.def }

// HistoryAttached has a history generator; a corrector may still follow.
type HistoryAttached[I, P any] struct {
	def *definition[I, P]
}

// Correct attaches the corrector used for the single retry.
func (h *HistoryAttached[I, P]) Correct(fn CorrectFunc[I, P]) *Resolvable[I, P] {
	return &Resolvable[I, P]{def: withCorrector(h.def, fn)}
}

func (h *HistoryAttached[I, P]) resolveStage() *definition[I, P] { return h.def }

// CorrectorAttached has a corrector; a history generator may still follow.
type CorrectorAttached[I, P any] struct {
	def *definition[I, P]
}

// History attaches an example-history generator.
func (c *CorrectorAttached[I, P]) History(gen HistoryFunc[I, P]) *Resolvable[I, P] {
	return &Resolvable[I, P]{def: withHistory(c.def, gen)}
}

func (c *CorrectorAttached[I, P]) resolveStage() *definition[I, P] { return c.def }

// Resolvable is fully configured; only Resolve remains.
type Resolvable[I, P any] struct {
	def *definition[I, P]
}

func (r *Resolvable[I, P]) resolveStage() *definition[I, P] { return r.def }

// ResolveStage is implemented by every handle that Resolve accepts.
type ResolveStage[I, P any] interface {
	resolveStage() *definition[I, P]
}

func withHistory[I, P any](src *definition[I, P], gen HistoryFunc[I, P]) *definition[I, P] {
	def := src.clone()
	def.history = gen
	return def
}

func withCorrector[I, P any](src *definition[I, P], fn CorrectFunc[I, P]) *definition[I, P] {
	def := src.clone()
	def.corrector = fn
	return def
}

// Resolve produces the callable pipeline. fn maps each successful
// invocation to the caller's output. Every Resolver owns its history cache,
// even when several are resolved from the same handle.
// It is a function rather than a method because it introduces the type O.
func Resolve[I, P, O any](stage ResolveStage[I, P], fn ResolveFunc[I, P, O]) *Resolver[I, O] {
	if fn == nil {
		panic("prompta: Resolve called with a nil function")
	}
	def := stage.resolveStage().clone()
	def.cache = NewHistoryCache()
	return newResolver(def, fn)
}
