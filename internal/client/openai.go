package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/windfall/ielts_service/internal/errors"
)

const openAIProvider = "openai"

// OpenAIClient sends chat completions with a caller-supplied key.
// Keys belong to users, so a go-openai client is built per call over a
// shared HTTP client.
type OpenAIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL uses the
// public API.
func NewOpenAIClient(baseURL string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name used in errors.
func (c *OpenAIClient) Name() string {
	return openAIProvider
}

// Complete sends req and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, apiKey string, req ChatRequest) (string, error) {
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.Provider(openAIProvider, errors.ReasonInvalidResponse, fmt.Errorf("response has no choices"))
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) *errors.AppError {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.Provider(openAIProvider, reasonForStatus(apiErr.HTTPStatusCode), err).
			WithDetails(map[string]interface{}{"status": apiErr.HTTPStatusCode})
	}

	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.Provider(openAIProvider, reasonForStatus(reqErr.HTTPStatusCode), err).
			WithDetails(map[string]interface{}{"status": reqErr.HTTPStatusCode})
	}

	return errors.Provider(openAIProvider, reasonForError(err), err)
}
