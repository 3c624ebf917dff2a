package http

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/repository"
	"github.com/windfall/ielts_service/internal/service"
	"github.com/windfall/ielts_service/pkg/response"
)

// maxAudioUpload caps multipart uploads.
const maxAudioUpload = 25 << 20

// SpeakingPractice is the speaking workflow. Implemented by service.SpeakingService.
type SpeakingPractice interface {
	GeneratePrompt(ctx context.Context, userID string) (*repository.SpeakingQuestion, error)
	SubmitAudio(ctx context.Context, userID string, questionID int64, audio []byte) (*service.SpeakingSubmission, error)
	GetResult(ctx context.Context, requestID string) (*service.SpeakingResult, error)
	RecentAnswers(ctx context.Context, userID string) ([]repository.SpeakingAnswer, error)
}

// SpeakingHandler handles Speaking Part 2 endpoints.
type SpeakingHandler struct {
	log      zerolog.Logger
	speaking SpeakingPractice
}

// NewSpeakingHandler creates a new Speaking handler.
func NewSpeakingHandler(log zerolog.Logger, speaking SpeakingPractice) *SpeakingHandler {
	return &SpeakingHandler{log: log, speaking: speaking}
}

// GeneratePrompt handles POST /api/v1/speaking/prompts
func (h *SpeakingHandler) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, err := h.speaking.GeneratePrompt(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.Created(w, q)
}

// SubmitAudio handles POST /api/v1/speaking/answers
// This is the PRODUCER endpoint: it returns the transcript immediately and,
// when background grading is enabled, a request_id for GetResult.
//
// Request: multipart/form-data with "question_id" and "audio_file" fields
// Response: 202 { "request_id", "transcript" } or 201 { "transcript", "result" }
func (h *SpeakingHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		handleError(w, h.log, errors.Validation("failed to parse multipart form"))
		return
	}

	questionID, err := strconv.ParseInt(r.FormValue("question_id"), 10, 64)
	if err != nil || questionID <= 0 {
		handleError(w, h.log, errors.Validation("question_id is required"))
		return
	}

	file, _, err := r.FormFile("audio_file")
	if err != nil {
		handleError(w, h.log, errors.Validation("audio_file is required"))
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		handleError(w, h.log, errors.Validation("failed to read audio file"))
		return
	}

	sub, err := h.speaking.SubmitAudio(r.Context(), userID, questionID, audioData)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if sub.RequestID != "" {
		response.JSON(w, http.StatusAccepted, sub)
		return
	}
	response.Created(w, sub)
}

// GetResult handles GET /api/v1/speaking/result
// This is the CONSUMER endpoint: it blocks on BLPOP until the grade is ready.
//
// Query param: request_id
// Response (timeout): 504 Gateway Timeout
func (h *SpeakingHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		handleError(w, h.log, errors.Validation("request_id is required"))
		return
	}

	result, err := h.speaking.GetResult(r.Context(), requestID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// RecentAnswers handles GET /api/v1/speaking/answers/recent
func (h *SpeakingHandler) RecentAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	answers, err := h.speaking.RecentAnswers(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if answers == nil {
		answers = []repository.SpeakingAnswer{}
	}

	response.JSON(w, http.StatusOK, answers)
}
