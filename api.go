// Package prompta builds typed, reusable prompt pipelines on top of a
// conversational completion API.
//
// A pipeline is assembled through a chain of capability-typed handles. Each
// call narrows what may come next: an optional input schema, an optional
// preparation step, the prompt template, then optional example history and an
// optional corrector. Resolve turns the chain into a Resolver whose Call
// validates input, prepares it, injects cached example history, compiles the
// message list, calls the completion API (retrying once through the corrector
// on failure) and hands the parsed content blocks to a caller-supplied
// function.
//
// Basic usage:
//
//	client, _ := prompta.New(prompta.Config{APIKey: apiKey})
//	ask := prompta.Resolve(
//	    prompta.Define[string](client).Prompt(prompta.Template[string]{
//	        System: prompta.Literal[string]("You answer with a single SQL query."),
//	        User:   prompta.Computed(func(q string) string { return q }),
//	    }),
//	    func(_ context.Context, rc *prompta.Context[string, string]) (string, error) {
//	        return rc.Blocks.First(prompta.BlockSQL).Content, nil
//	    },
//	)
//	query, err := ask.Call(ctx, "count the users")
package prompta

import "context"

// Transport performs the remote completion call.
// Implementations return a *CompletionError for upstream failures.
type Transport interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Role constants for message types.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single role-tagged entry of the conversation sent to the API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is one example exchange injected before the live user turn.
type HistoryEntry struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// CompletionRequest is the body of one remote completion call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
}

// TokenUsage contains token counts from a completion response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one candidate completion.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Completion is the success payload of the completion API.
type Completion struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"`
	Created int64      `json:"created"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
	Choices []Choice   `json:"choices"`
}

// Result is a completion together with the blocks parsed from every choice.
type Result struct {
	Completion *Completion
	Blocks     Blocks
}

// Defaults applied when neither the client nor the call sets a value.
const (
	DefaultModel = "gpt-3.5-turbo"

	DefaultTemperature float32 = 0.7
)

// Temperature sentinels.
const (
	// TemperatureUnset indicates that no temperature has been explicitly set.
	// Note: a zero-value float32 (0.0) is also treated as unset for ergonomic struct initialization.
	TemperatureUnset float32 = -1

	// TemperatureZero provides an explicitly near-zero temperature for maximum determinism.
	// Use this instead of 0.0 since zero is treated as "unset".
	TemperatureZero float32 = 0.0001
)

func temperatureSet(t float32) bool {
	return t != TemperatureUnset && t != 0
}
