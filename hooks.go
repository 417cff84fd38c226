package prompta

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	ResolveStarted      = capitan.Signal("prompta.resolve.started")
	ResolveCompleted    = capitan.Signal("prompta.resolve.completed")
	ResolveFailed       = capitan.Signal("prompta.resolve.failed")
	HistoryGenerated    = capitan.Signal("prompta.history.generated")
	HistoryFailed       = capitan.Signal("prompta.history.failed")
	CompletionStarted   = capitan.Signal("prompta.completion.started")
	CompletionCompleted = capitan.Signal("prompta.completion.completed")
	CompletionFailed    = capitan.Signal("prompta.completion.failed")
	CorrectionAttempted = capitan.Signal("prompta.correction.attempted")
)

// Signals lists every signal emitted by this package.
var Signals = []capitan.Signal{
	ResolveStarted,
	ResolveCompleted,
	ResolveFailed,
	HistoryGenerated,
	HistoryFailed,
	CompletionStarted,
	CompletionCompleted,
	CompletionFailed,
	CorrectionAttempted,
}

// Keys for hook event fields.
var (
	// Invocation identification.
	InvocationIDKey = capitan.NewStringKey("prompta.invocation.id")
	AttemptKey      = capitan.NewIntKey("prompta.attempt")

	// Request parameters.
	ModelKey        = capitan.NewStringKey("prompta.model")
	TemperatureKey  = capitan.NewFloat64Key("prompta.temperature")
	MessageCountKey = capitan.NewIntKey("prompta.messages")

	// History.
	HistorySizeKey  = capitan.NewIntKey("prompta.history.size")
	HistoryFreshKey = capitan.NewStringKey("prompta.history.fresh")
	HistoryStaleKey = capitan.NewStringKey("prompta.history.stale")

	// Response data.
	ResponseIDKey    = capitan.NewStringKey("prompta.response.id")
	BlockCountKey    = capitan.NewIntKey("prompta.blocks")
	PromptTokensKey  = capitan.NewIntKey("prompta.tokens.prompt")
	OutputTokensKey  = capitan.NewIntKey("prompta.tokens.completion")
	TotalTokensKey   = capitan.NewIntKey("prompta.tokens.total")
	DurationMsKey    = capitan.NewIntKey("prompta.duration.ms")
	FinishReasonKey  = capitan.NewStringKey("prompta.response.finish.reason")
	HTTPStatusKey    = capitan.NewIntKey("prompta.http.status.code")
	APIErrorTypeKey  = capitan.NewStringKey("prompta.api.error.type")
	APIErrorCodeKey  = capitan.NewStringKey("prompta.api.error.code")
	APIErrorParamKey = capitan.NewStringKey("prompta.api.error.param")

	// Error information.
	ErrorKey = capitan.NewStringKey("prompta.error")
)

func flag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
