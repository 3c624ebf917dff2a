package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/windfall/ielts_service/internal/errors"
)

const geminiProvider = "gemini"

// GeminiClient sends completions to the Gemini API with a caller-supplied key.
type GeminiClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiClient creates a Gemini client for model. An empty baseURL uses
// the public endpoint.
func NewGeminiClient(baseURL, model string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name used in errors.
func (c *GeminiClient) Name() string {
	return geminiProvider
}

// Complete sends req as a single-turn request. System messages become the
// system instruction and the rest are joined into the user turn. req.Model
// is used only when it names a Gemini model.
func (c *GeminiClient) Complete(ctx context.Context, apiKey string, req ChatRequest) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return "", errors.Provider(geminiProvider, errors.ReasonUnreachable, err)
	}

	model := c.model
	if strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}

	var system, user []string
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		user = append(user, m.Content)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(strings.Join(user, "\n\n")), cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.Provider(geminiProvider, errors.ReasonInvalidResponse, fmt.Errorf("response has no text"))
	}
	return text, nil
}

func classifyGeminiError(err error) *errors.AppError {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.Provider(geminiProvider, reasonForStatus(apiErr.Code), err).
			WithDetails(map[string]interface{}{"status": apiErr.Code})
	}
	var apiErrPtr *genai.APIError
	if stderrors.As(err, &apiErrPtr) {
		return errors.Provider(geminiProvider, reasonForStatus(apiErrPtr.Code), err).
			WithDetails(map[string]interface{}{"status": apiErrPtr.Code})
	}
	return errors.Provider(geminiProvider, reasonForError(err), err)
}
