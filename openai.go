package prompta

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI transport.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string        // Optional, defaults to "https://api.openai.com/v1"
	Timeout time.Duration // Optional, defaults to 30s
}

// OpenAITransport sends chat completion requests to an OpenAI-compatible API.
type OpenAITransport struct {
	client *openai.Client
}

// NewOpenAITransport creates a transport for the given configuration.
func NewOpenAITransport(config OpenAIConfig) *OpenAITransport {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAITransport{client: openai.NewClientWithConfig(clientConfig)}
}

// AzureConfig holds configuration for an Azure OpenAI deployment.
type AzureConfig struct {
	Endpoint   string        // https://{your-resource}.openai.azure.com
	APIKey     string        // Sent as the api-key header
	Deployment string        // Every request is routed to this deployment
	APIVersion string        // Optional, defaults to "2024-02-01"
	Timeout    time.Duration // Optional, defaults to 30s
}

// NewAzureTransport creates a transport for an Azure OpenAI deployment.
// The request model is ignored in favour of the deployment.
func NewAzureTransport(config AzureConfig) *OpenAITransport {
	if config.APIVersion == "" {
		config.APIVersion = "2024-02-01"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultAzureConfig(config.APIKey, config.Endpoint)
	clientConfig.APIVersion = config.APIVersion
	clientConfig.AzureModelMapperFunc = func(string) string { return config.Deployment }
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAITransport{client: openai.NewClientWithConfig(clientConfig)}
}

// Complete posts the messages to /chat/completions.
func (t *OpenAITransport) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, toCompletionError(err)
	}

	completion := &Completion{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Choices: make([]Choice, len(resp.Choices)),
	}
	for i, choice := range resp.Choices {
		completion.Choices[i] = Choice{
			Index: choice.Index,
			Message: Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		}
	}

	return completion, nil
}

// toCompletionError maps go-openai failures onto *CompletionError.
func toCompletionError(err error) *CompletionError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		cerr := &CompletionError{
			Message:    apiErr.Message,
			Type:       apiErr.Type,
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
		if apiErr.Code != nil {
			cerr.Code = fmt.Sprint(apiErr.Code)
		}
		if apiErr.Param != nil {
			cerr.Param = *apiErr.Param
		}
		return cerr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &CompletionError{
			Message:    reqErr.Error(),
			Type:       TypeTransport,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	return &CompletionError{Message: err.Error(), Type: TypeTransport, Err: err}
}
