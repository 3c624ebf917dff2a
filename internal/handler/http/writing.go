package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/repository"
	"github.com/windfall/ielts_service/internal/service"
	"github.com/windfall/ielts_service/pkg/response"
)

// WritingPractice is the writing workflow. Implemented by service.WritingService.
type WritingPractice interface {
	GeneratePrompt(ctx context.Context, userID string) (*repository.WritingQuestion, error)
	SubmitEssay(ctx context.Context, userID string, questionID int64, essay string) (*service.WritingResult, error)
	RecentAnswers(ctx context.Context, userID string) ([]repository.WritingAnswer, error)
}

// WritingHandler handles Writing Task 2 endpoints.
type WritingHandler struct {
	log     zerolog.Logger
	writing WritingPractice
}

// NewWritingHandler creates a new Writing handler.
func NewWritingHandler(log zerolog.Logger, writing WritingPractice) *WritingHandler {
	return &WritingHandler{log: log, writing: writing}
}

// GeneratePrompt handles POST /api/v1/writing/prompts
func (h *WritingHandler) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, err := h.writing.GeneratePrompt(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.Created(w, q)
}

// SubmitEssayRequest represents the request body for grading an essay.
type SubmitEssayRequest struct {
	QuestionID int64  `json:"question_id"`
	Essay      string `json:"essay"`
}

// SubmitEssay handles POST /api/v1/writing/answers
func (h *WritingHandler) SubmitEssay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SubmitEssayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}
	if req.QuestionID <= 0 {
		handleError(w, h.log, errors.Validation("question_id is required"))
		return
	}

	result, err := h.writing.SubmitEssay(r.Context(), userID, req.QuestionID, req.Essay)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.Created(w, result)
}

// RecentAnswers handles GET /api/v1/writing/answers/recent
func (h *WritingHandler) RecentAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	answers, err := h.writing.RecentAnswers(r.Context(), userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if answers == nil {
		answers = []repository.WritingAnswer{}
	}

	response.JSON(w, http.StatusOK, answers)
}
