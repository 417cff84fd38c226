// Package testing provides utilities for testing prompta pipelines.
package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/prompta"
)

// ContentBuilder provides a fluent interface for constructing completion
// text made of prose and fenced blocks.
type ContentBuilder struct {
	parts []string
}

// NewContentBuilder creates a new ContentBuilder.
func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{}
}

// Text appends a prose paragraph.
func (b *ContentBuilder) Text(text string) *ContentBuilder {
	b.parts = append(b.parts, text)
	return b
}

// Fence appends a fenced block with the given language tag. An empty tag
// produces an unlabeled fence.
func (b *ContentBuilder) Fence(tag, body string) *ContentBuilder {
	b.parts = append(b.parts, "```"+tag+"\n"+body+"\n```")
	return b
}

// SQL appends a fenced sql block.
func (b *ContentBuilder) SQL(query string) *ContentBuilder {
	return b.Fence(prompta.BlockSQL, query)
}

// Build returns the content with parts separated by blank lines.
func (b *ContentBuilder) Build() string {
	return strings.Join(b.parts, "\n\n")
}

// Completion wraps the content in a single-choice completion.
func (b *ContentBuilder) Completion(model string) *prompta.Completion {
	return prompta.MockCompletion(model, b.Build())
}

// SequencedTransport returns contents in sequence.
// After all contents are exhausted, it returns the last content repeatedly.
type SequencedTransport struct {
	contents []string
	index    atomic.Int64
}

// NewSequencedTransport creates a transport that answers with contents in order.
func NewSequencedTransport(contents ...string) *SequencedTransport {
	if len(contents) == 0 {
		contents = []string{"no contents configured"}
	}
	return &SequencedTransport{
		contents: contents,
	}
}

// Complete returns the next content in sequence.
func (t *SequencedTransport) Complete(_ context.Context, req prompta.CompletionRequest) (*prompta.Completion, error) {
	idx := int(t.index.Add(1) - 1)

	// Clamp to last content if exhausted
	if idx >= len(t.contents) {
		idx = len(t.contents) - 1
	}

	return prompta.MockCompletion(req.Model, t.contents[idx]), nil
}

// CallCount returns the number of calls made.
func (t *SequencedTransport) CallCount() int {
	return int(t.index.Load())
}

// Reset resets the call counter.
func (t *SequencedTransport) Reset() {
	t.index.Store(0)
}

// FailingTransport fails a specified number of times before succeeding.
type FailingTransport struct {
	failCount    int
	currentCount atomic.Int64
	content      string
	failure      prompta.CompletionError
}

// NewFailingTransport creates a transport that fails failCount times then succeeds.
func NewFailingTransport(failCount int) *FailingTransport {
	return &FailingTransport{
		failCount: failCount,
		content:   "recovered",
		failure: prompta.CompletionError{
			Message:    "simulated upstream failure",
			Type:       "server_error",
			StatusCode: 500,
		},
	}
}

// WithContent sets the content returned after failures are exhausted.
func (t *FailingTransport) WithContent(content string) *FailingTransport {
	t.content = content
	return t
}

// WithFailure sets the API error returned while failing.
func (t *FailingTransport) WithFailure(failure prompta.CompletionError) *FailingTransport {
	t.failure = failure
	return t
}

// Complete fails until failCount is reached, then succeeds.
func (t *FailingTransport) Complete(_ context.Context, req prompta.CompletionRequest) (*prompta.Completion, error) {
	count := t.currentCount.Add(1)
	if int(count) <= t.failCount {
		failure := t.failure
		failure.Message = fmt.Sprintf("%s (attempt %d/%d)", failure.Message, count, t.failCount)
		return nil, &failure
	}

	return prompta.MockCompletion(req.Model, t.content), nil
}

// CallCount returns the number of calls made.
func (t *FailingTransport) CallCount() int {
	return int(t.currentCount.Load())
}

// Reset resets the call counter.
func (t *FailingTransport) Reset() {
	t.currentCount.Store(0)
}

// CallRecorder wraps a transport and records all requests sent to it.
type CallRecorder struct {
	transport prompta.Transport
	calls     []prompta.CompletionRequest
	mu        sync.Mutex
}

// NewCallRecorder wraps a transport with call recording.
func NewCallRecorder(transport prompta.Transport) *CallRecorder {
	return &CallRecorder{
		transport: transport,
		calls:     make([]prompta.CompletionRequest, 0),
	}
}

// Complete delegates to the wrapped transport and records the request.
func (r *CallRecorder) Complete(ctx context.Context, req prompta.CompletionRequest) (*prompta.Completion, error) {
	// Record the request (copy messages to avoid aliasing)
	recorded := req
	recorded.Messages = make([]prompta.Message, len(req.Messages))
	copy(recorded.Messages, req.Messages)

	r.mu.Lock()
	r.calls = append(r.calls, recorded)
	r.mu.Unlock()

	return r.transport.Complete(ctx, req)
}

// Calls returns a copy of all recorded requests.
func (r *CallRecorder) Calls() []prompta.CompletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]prompta.CompletionRequest, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// CallCount returns the number of calls recorded.
func (r *CallRecorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// LastCall returns the most recent request, or nil if no calls made.
func (r *CallRecorder) LastCall() *prompta.CompletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return nil
	}
	call := r.calls[len(r.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make([]prompta.CompletionRequest, 0)
}

// LatencyTransport wraps a transport and adds artificial latency.
type LatencyTransport struct {
	transport prompta.Transport
	delay     time.Duration
}

// NewLatencyTransport wraps a transport with artificial delay.
// The delay is applied before each call and respects context cancellation.
func NewLatencyTransport(transport prompta.Transport, delay time.Duration) *LatencyTransport {
	return &LatencyTransport{
		transport: transport,
		delay:     delay,
	}
}

// Complete adds latency then delegates to the wrapped transport.
func (t *LatencyTransport) Complete(ctx context.Context, req prompta.CompletionRequest) (*prompta.Completion, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.transport.Complete(ctx, req)
}

// UsageAccumulator tracks total token usage across multiple completions.
// Its Observe method can be used as a Config.OnResolve observer.
type UsageAccumulator struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	totalTokens      atomic.Int64
	callCount        atomic.Int64
}

// NewUsageAccumulator creates a new usage accumulator.
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{}
}

// Observe accumulates the usage of a completed result.
func (a *UsageAccumulator) Observe(_ context.Context, result *prompta.Result) error {
	if result != nil && result.Completion != nil {
		a.AddUsage(result.Completion.Usage)
	}
	return nil
}

// AddUsage accumulates usage directly.
func (a *UsageAccumulator) AddUsage(usage prompta.TokenUsage) {
	a.promptTokens.Add(int64(usage.PromptTokens))
	a.completionTokens.Add(int64(usage.CompletionTokens))
	a.totalTokens.Add(int64(usage.TotalTokens))
	a.callCount.Add(1)
}

// PromptTokens returns total prompt tokens.
func (a *UsageAccumulator) PromptTokens() int {
	return int(a.promptTokens.Load())
}

// CompletionTokens returns total completion tokens.
func (a *UsageAccumulator) CompletionTokens() int {
	return int(a.completionTokens.Load())
}

// TotalTokens returns total tokens.
func (a *UsageAccumulator) TotalTokens() int {
	return int(a.totalTokens.Load())
}

// CallCount returns number of completions accumulated.
func (a *UsageAccumulator) CallCount() int {
	return int(a.callCount.Load())
}

// Reset clears all accumulated values.
func (a *UsageAccumulator) Reset() {
	a.promptTokens.Store(0)
	a.completionTokens.Store(0)
	a.totalTokens.Store(0)
	a.callCount.Store(0)
}
