package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/assessment"
	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/repository"
)

// WritingResult is returned after an essay is graded and stored.
type WritingResult struct {
	Answer    *repository.WritingAnswer `json:"answer"`
	Grade     assessment.GradeResult    `json:"grade"`
	WordCount int                       `json:"word_count"`
}

// WritingService runs Writing Task 2 practice.
type WritingService struct {
	deps   assessment.Deps
	repo   repository.WritingRepository
	events EventPublisher
	log    zerolog.Logger
}

// NewWritingService creates a WritingService. events may be nil.
func NewWritingService(deps assessment.Deps, repo repository.WritingRepository, events EventPublisher, log zerolog.Logger) *WritingService {
	return &WritingService{deps: deps, repo: repo, events: events, log: log}
}

// GeneratePrompt creates and stores a new question for userID.
func (s *WritingService) GeneratePrompt(ctx context.Context, userID string) (*repository.WritingQuestion, error) {
	facade, err := assessment.NewWritingFacade(ctx, s.deps, userID)
	if err != nil {
		return nil, err
	}

	prompt, err := facade.GeneratePrompt(ctx)
	if err != nil {
		return nil, err
	}

	q := &repository.WritingQuestion{UserID: userID, Content: prompt.Text}
	if err := s.repo.CreateWritingQuestion(ctx, q); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save writing question", err)
	}

	s.log.Info().Str("user_id", userID).Int64("question_id", q.ID).Msg("Writing question generated")
	return q, nil
}

// SubmitEssay grades essay against the stored question and stores the answer.
func (s *WritingService) SubmitEssay(ctx context.Context, userID string, questionID int64, essay string) (*WritingResult, error) {
	q, err := s.repo.GetWritingQuestion(ctx, userID, questionID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load writing question", err)
	}
	if q == nil {
		return nil, errors.NotFound("writing question")
	}

	facade, err := assessment.NewWritingFacade(ctx, s.deps, userID)
	if err != nil {
		return nil, err
	}

	grade, err := facade.Grade(ctx, essay, q.Content)
	if err != nil {
		return nil, err
	}

	answer := &repository.WritingAnswer{
		QuestionID: q.ID,
		UserID:     userID,
		Content:    essay,
		WordCount:  CountWords(essay),
		Grade:      grade.OverallScore,
		Feedback:   grade.Feedback,
	}
	if err := s.repo.CreateWritingAnswer(ctx, answer); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save writing answer", err)
	}

	publish(ctx, s.events, s.log, AttemptEvent{
		Type:       EventWritingGraded,
		UserID:     userID,
		QuestionID: q.ID,
		AnswerID:   answer.ID,
		Score:      grade.OverallScore,
		OccurredAt: answer.CreatedAt,
	})

	s.log.Info().
		Str("user_id", userID).
		Int64("answer_id", answer.ID).
		Float64("score", grade.OverallScore).
		Int("words", answer.WordCount).
		Msg("Essay graded")

	return &WritingResult{Answer: answer, Grade: grade, WordCount: answer.WordCount}, nil
}

// RecentAnswers returns the user's last five graded essays, newest first.
func (s *WritingService) RecentAnswers(ctx context.Context, userID string) ([]repository.WritingAnswer, error) {
	answers, err := s.repo.RecentWritingAnswers(ctx, userID, recentLimit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load writing answers", err)
	}
	return answers, nil
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
