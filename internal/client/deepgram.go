package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/windfall/ielts_service/internal/errors"
)

const deepgramProvider = "deepgram"

// DeepgramClient wraps the Deepgram prerecorded transcription REST API.
type DeepgramClient struct {
	baseURL   string
	transport *http.Transport
	client    *http.Client
}

// TranscribeOptions are the /v1/listen query options.
type TranscribeOptions struct {
	Model       string
	Language    string
	SmartFormat bool
	Paragraphs  bool
	// ContentType of the audio bytes, "audio/wav" when empty.
	ContentType string
}

// TranscriptionResponse is the part of the Deepgram response the service reads.
type TranscriptionResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []DeepgramChannel `json:"channels"`
	} `json:"results"`
}

// DeepgramChannel is one audio channel's result.
type DeepgramChannel struct {
	Alternatives []DeepgramAlternative `json:"alternatives"`
}

// DeepgramAlternative is one transcription hypothesis.
type DeepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// NewDeepgramClient creates a client for baseURL, e.g. https://api.deepgram.com.
func NewDeepgramClient(baseURL string, timeout time.Duration) *DeepgramClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &DeepgramClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Name returns the provider name used in errors.
func (c *DeepgramClient) Name() string {
	return deepgramProvider
}

// Transcribe posts audio to /v1/listen with the given key.
func (c *DeepgramClient) Transcribe(ctx context.Context, apiKey string, audio []byte, opts TranscribeOptions) (*TranscriptionResponse, error) {
	q := url.Values{}
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("paragraphs", strconv.FormatBool(opts.Paragraphs))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/listen?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, errors.InternalWrap("failed to create deepgram request", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}
	req.Header.Set("Authorization", "Token "+apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Provider(deepgramProvider, reasonForError(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Provider(deepgramProvider, reasonForStatus(resp.StatusCode),
			fmt.Errorf("deepgram api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))).
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}

	var result TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Provider(deepgramProvider, errors.ReasonInvalidResponse, fmt.Errorf("failed to decode response: %w", err))
	}

	return &result, nil
}

// Close releases idle connections.
func (c *DeepgramClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
