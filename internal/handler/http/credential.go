package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/service"
	"github.com/windfall/ielts_service/pkg/response"
)

// CredentialSettings manages provider keys. Implemented by service.CredentialService.
type CredentialSettings interface {
	Save(ctx context.Context, userID, textGenKey, speechKey string) (*service.CredentialStatus, error)
	Get(ctx context.Context, userID string) (*service.CredentialStatus, error)
	Delete(ctx context.Context, userID string) error
}

// CredentialHandler handles the API key settings endpoints.
type CredentialHandler struct {
	log         zerolog.Logger
	credentials CredentialSettings
}

// NewCredentialHandler creates a new Credential handler.
func NewCredentialHandler(log zerolog.Logger, credentials CredentialSettings) *CredentialHandler {
	return &CredentialHandler{log: log, credentials: credentials}
}

// SaveCredentialRequest represents the request body for saving API keys.
type SaveCredentialRequest struct {
	TextGenKey string `json:"text_gen_key"`
	SpeechKey  string `json:"speech_key"`
}

// Get handles GET /api/v1/credentials
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	status, err := h.credentials.Get(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, status)
}

// Save handles PUT /api/v1/credentials
func (h *CredentialHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SaveCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}

	status, err := h.credentials.Save(r.Context(), userID, req.TextGenKey, req.SpeechKey)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, status)
}

// Delete handles DELETE /api/v1/credentials
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.credentials.Delete(r.Context(), userID); err != nil {
		handleError(w, h.log, err)
		return
	}

	response.NoContent(w)
}
