package prompta

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zoobzio/pipz"
)

// Exchange flows through the transport pipeline.
// It carries the outgoing request and, once the call succeeds, the completion.
type Exchange struct {
	InvocationID string
	Attempt      int
	Request      CompletionRequest

	// Output fields (populated by the pipeline)
	Completion *Completion
	Err        *CompletionError
}

// Option wraps the transport pipeline with a reliability feature.
type Option func(pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange]

// WithCircuitBreaker adds circuit breaker protection to the transport.
// After 'failures' consecutive failures, the circuit opens for 'recovery' duration.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange] {
		return pipz.NewCircuitBreaker("circuit-breaker", pipeline, failures, recovery)
	}
}

// WithRateLimit adds rate limiting in front of the transport.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange] {
		rateLimiter := pipz.NewRateLimiter[*Exchange]("rate-limit", rps, burst)
		return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
	}
}

// WithErrorHandler routes transport failures to handler for logging or
// alerting. The failure is still returned to the invocation.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Exchange]]) Option {
	return func(pipeline pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange] {
		return pipz.NewHandle("error-handler", pipeline, handler)
	}
}

// PipelineProvider is implemented by types that expose a transport pipeline
// for composition.
type PipelineProvider interface {
	GetPipeline() pipz.Chainable[*Exchange]
}

// WithFallback sends the request through fallback's pipeline when the primary
// fails. The request keeps the primary's model and temperature.
func WithFallback(fallback PipelineProvider) Option {
	return func(pipeline pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange] {
		return pipz.NewFallback("with-fallback", pipeline, fallback.GetPipeline())
	}
}

// WithDebug logs every outgoing message list and raw completion at debug level.
func WithDebug() Option {
	return func(pipeline pipz.Chainable[*Exchange]) pipz.Chainable[*Exchange] {
		return pipz.Apply("debug", func(ctx context.Context, ex *Exchange) (*Exchange, error) {
			for i, msg := range ex.Request.Messages {
				log.Debug().
					Str("invocation", ex.InvocationID).
					Int("index", i).
					Str("role", msg.Role).
					Str("content", msg.Content).
					Msg("prompta: outgoing message")
			}

			processed, err := pipeline.Process(ctx, ex)
			if err != nil {
				log.Debug().Str("invocation", ex.InvocationID).Err(err).Msg("prompta: completion failed")
				return processed, err
			}

			for _, choice := range processed.Completion.Choices {
				log.Debug().
					Str("invocation", ex.InvocationID).
					Int("choice", choice.Index).
					Str("content", choice.Message.Content).
					Msg("prompta: raw completion")
			}
			return processed, nil
		})
	}
}
