package prompta

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// ObserverFunc is notified once per successful completion. Its error is
// logged and otherwise ignored.
type ObserverFunc func(ctx context.Context, result *Result) error

// Invoker performs completion calls and parses their content into blocks.
type Invoker struct {
	pipeline    pipz.Chainable[*Exchange]
	model       string
	temperature float32
	observer    ObserverFunc
}

// NewInvoker wraps transport in the pipeline built from opts.
// Empty model and unset temperature fall back to the package defaults.
func NewInvoker(transport Transport, model string, temperature float32, observer ObserverFunc, opts ...Option) *Invoker {
	if model == "" {
		model = DefaultModel
	}
	if !temperatureSet(temperature) {
		temperature = DefaultTemperature
	}

	var pipeline = NewTerminal(transport)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}

	return &Invoker{
		pipeline:    pipeline,
		model:       model,
		temperature: temperature,
		observer:    observer,
	}
}

// NewTerminal creates the pipeline stage that calls the transport.
func NewTerminal(transport Transport) pipz.Chainable[*Exchange] {
	return pipz.Apply("completion", func(ctx context.Context, ex *Exchange) (*Exchange, error) {
		completion, err := transport.Complete(ctx, ex.Request)
		if err != nil {
			ex.Err = asCompletionError(err)
			return ex, ex.Err
		}
		if completion == nil {
			ex.Err = &CompletionError{Message: "empty completion", Type: TypeTransport}
			return ex, ex.Err
		}
		ex.Completion = completion
		ex.Err = nil
		return ex, nil
	})
}

// GetPipeline returns the transport pipeline, options included.
func (iv *Invoker) GetPipeline() pipz.Chainable[*Exchange] {
	return iv.pipeline
}

// Invoke sends req and returns the completion with its parsed blocks.
// Failures are returned as *CompletionError.
func (iv *Invoker) Invoke(ctx context.Context, req CompletionRequest) (*Result, error) {
	return iv.invoke(ctx, &Exchange{Request: req, Attempt: 1})
}

func (iv *Invoker) invoke(ctx context.Context, ex *Exchange) (*Result, error) {
	if ex.Request.Model == "" {
		ex.Request.Model = iv.model
	}
	if !temperatureSet(ex.Request.Temperature) {
		ex.Request.Temperature = iv.temperature
	}

	start := time.Now()
	capitan.Info(ctx, CompletionStarted,
		InvocationIDKey.Field(ex.InvocationID),
		AttemptKey.Field(ex.Attempt),
		ModelKey.Field(ex.Request.Model),
		TemperatureKey.Field(float64(ex.Request.Temperature)),
		MessageCountKey.Field(len(ex.Request.Messages)),
	)

	processed, err := iv.pipeline.Process(ctx, ex)
	duration := int(time.Since(start).Milliseconds())
	if err != nil {
		cerr := ex.Err
		if cerr == nil {
			cerr = asCompletionError(err)
		}
		capitan.Error(ctx, CompletionFailed,
			InvocationIDKey.Field(ex.InvocationID),
			AttemptKey.Field(ex.Attempt),
			ModelKey.Field(ex.Request.Model),
			DurationMsKey.Field(duration),
			HTTPStatusKey.Field(cerr.StatusCode),
			APIErrorTypeKey.Field(cerr.Type),
			APIErrorCodeKey.Field(cerr.Code),
			APIErrorParamKey.Field(cerr.Param),
			ErrorKey.Field(cerr.Message),
		)
		return nil, cerr
	}

	completion := processed.Completion
	var blocks Blocks
	for _, choice := range completion.Choices {
		blocks = append(blocks, ParseBlocks(choice.Message.Content)...)
	}
	result := &Result{Completion: completion, Blocks: blocks}

	fields := []capitan.Field{
		InvocationIDKey.Field(ex.InvocationID),
		AttemptKey.Field(ex.Attempt),
		ModelKey.Field(completion.Model),
		ResponseIDKey.Field(completion.ID),
		BlockCountKey.Field(len(blocks)),
		PromptTokensKey.Field(completion.Usage.PromptTokens),
		OutputTokensKey.Field(completion.Usage.CompletionTokens),
		TotalTokensKey.Field(completion.Usage.TotalTokens),
		DurationMsKey.Field(duration),
	}
	if len(completion.Choices) > 0 && completion.Choices[0].FinishReason != "" {
		fields = append(fields, FinishReasonKey.Field(completion.Choices[0].FinishReason))
	}
	capitan.Info(ctx, CompletionCompleted, fields...)

	iv.notify(ctx, result)
	return result, nil
}

// notify runs the observer, keeping its failures out of the pipeline.
func (iv *Invoker) notify(ctx context.Context, result *Result) {
	if iv.observer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("panic", fmt.Sprint(r)).Msg("prompta: resolve observer panicked")
		}
	}()

	if err := iv.observer(ctx, result); err != nil {
		log.Warn().Err(err).Msg("prompta: resolve observer failed")
	}
}

// asCompletionError returns the *CompletionError inside err, or wraps err as
// a transport failure.
func asCompletionError(err error) *CompletionError {
	var cerr *CompletionError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &CompletionError{
		Message: err.Error(),
		Type:    TypeTransport,
		Err:     err,
	}
}
