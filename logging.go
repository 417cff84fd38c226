package prompta

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/zoobzio/capitan"
)

// SignalLogger mirrors prompta signals into a zerolog logger.
type SignalLogger struct {
	closers []func()
}

// LogSignals hooks every prompta signal and writes it to logger. Failure
// signals log at warn level, everything else at debug.
func LogSignals(logger zerolog.Logger) *SignalLogger {
	sl := &SignalLogger{}
	for _, signal := range Signals {
		level := zerolog.DebugLevel
		switch signal {
		case ResolveFailed, HistoryFailed, CompletionFailed, CorrectionAttempted:
			level = zerolog.WarnLevel
		}
		listener := capitan.Hook(signal, logEvent(logger, signal, level))
		sl.closers = append(sl.closers, func() { listener.Close() })
	}
	return sl
}

// Close detaches the hooks.
func (sl *SignalLogger) Close() {
	for _, closeFn := range sl.closers {
		closeFn()
	}
}

func logEvent(logger zerolog.Logger, signal capitan.Signal, level zerolog.Level) func(context.Context, *capitan.Event) {
	return func(_ context.Context, e *capitan.Event) {
		ev := logger.WithLevel(level).Str("signal", string(signal))
		if v, ok := InvocationIDKey.From(e); ok {
			ev = ev.Str("invocation", v)
		}
		if v, ok := AttemptKey.From(e); ok {
			ev = ev.Int("attempt", v)
		}
		if v, ok := ModelKey.From(e); ok {
			ev = ev.Str("model", v)
		}
		if v, ok := HistorySizeKey.From(e); ok {
			ev = ev.Int("history", v)
		}
		if v, ok := HistoryStaleKey.From(e); ok {
			ev = ev.Str("stale", v)
		}
		if v, ok := BlockCountKey.From(e); ok {
			ev = ev.Int("blocks", v)
		}
		if v, ok := TotalTokensKey.From(e); ok {
			ev = ev.Int("tokens", v)
		}
		if v, ok := DurationMsKey.From(e); ok {
			ev = ev.Int("duration_ms", v)
		}
		if v, ok := APIErrorCodeKey.From(e); ok && v != "" {
			ev = ev.Str("code", v)
		}
		if v, ok := ErrorKey.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("prompta")
	}
}
