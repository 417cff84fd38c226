package prompta

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/zoobzio/pipz"
)

// Config configures a Client.
type Config struct {
	// APIKey authenticates against the completion API. Required unless a
	// Transport is supplied.
	APIKey string

	// BaseURL overrides the API endpoint root.
	BaseURL string

	// Model and Temperature are the client-wide defaults; per-call options
	// take precedence.
	Model       string
	Temperature float32

	// Timeout bounds each HTTP request of the default transport.
	Timeout time.Duration

	// OnResolve observes every successful completion, for telemetry.
	OnResolve ObserverFunc

	// Transport replaces the default OpenAI transport.
	Transport Transport
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKey, validation.When(c.Transport == nil, validation.Required)),
		validation.Field(&c.Temperature,
			validation.When(c.Temperature != TemperatureUnset, validation.Min(float32(0))),
			validation.Max(float32(2)),
		),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Client owns the transport and the client-wide defaults shared by every
// pipeline defined on it.
type Client struct {
	invoker *Invoker
}

// New creates a Client. opts wrap the transport pipeline.
func New(config Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	transport := config.Transport
	if transport == nil {
		transport = NewOpenAITransport(OpenAIConfig{
			APIKey:  config.APIKey,
			BaseURL: config.BaseURL,
			Timeout: config.Timeout,
		})
	}

	return &Client{
		invoker: NewInvoker(transport, config.Model, config.Temperature, config.OnResolve, opts...),
	}, nil
}

// Invoker returns the client's remote invoker.
func (c *Client) Invoker() *Invoker {
	return c.invoker
}

// GetPipeline returns the client's transport pipeline, so another client can
// use it through WithFallback.
func (c *Client) GetPipeline() pipz.Chainable[*Exchange] {
	return c.invoker.GetPipeline()
}
