package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/assessment"
	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/repository"
)

const (
	// Redis key prefix for graded speaking results
	speakingResultKeyPrefix = "speaking:result:"

	defaultResultTTL  = 60 * time.Second
	defaultResultWait = 10 * time.Second

	// Status values of a SpeakingResult
	StatusGraded = "graded"
	StatusFailed = "failed"
)

// ResultQueue carries background grades from producer to consumer.
// Implemented by client.RedisClient.
type ResultQueue interface {
	RPush(ctx context.Context, key string, value interface{}) error
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
	BLPop(ctx context.Context, timeout time.Duration, key string) ([]byte, error)
}

// SpeakingResult is a finished speaking attempt.
type SpeakingResult struct {
	RequestID string                     `json:"request_id,omitempty"`
	Status    string                     `json:"status"`
	Answer    *repository.SpeakingAnswer `json:"answer,omitempty"`
	Grade     *assessment.GradeResult    `json:"grade,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// SpeakingSubmission is returned as soon as the recording is transcribed.
// Result is set when grading ran synchronously; otherwise RequestID names
// the result to poll for.
type SpeakingSubmission struct {
	RequestID  string          `json:"request_id,omitempty"`
	Transcript string          `json:"transcript"`
	Result     *SpeakingResult `json:"result,omitempty"`
}

// SpeakingConfig tunes the result queue.
type SpeakingConfig struct {
	ResultTTL  time.Duration
	ResultWait time.Duration
}

// SpeakingService runs Speaking Part 2 practice.
//
// With a ResultQueue configured, SubmitAudio returns after transcription and
// grades in the background; GetResult is the consumer side.
type SpeakingService struct {
	deps    assessment.Deps
	repo    repository.SpeakingRepository
	queue   ResultQueue
	archive Archiver
	events  EventPublisher
	cfg     SpeakingConfig
	log     zerolog.Logger

	wg sync.WaitGroup
}

// NewSpeakingService creates a SpeakingService. queue, archive and events may be nil.
func NewSpeakingService(
	deps assessment.Deps,
	repo repository.SpeakingRepository,
	queue ResultQueue,
	archive Archiver,
	events EventPublisher,
	cfg SpeakingConfig,
	log zerolog.Logger,
) *SpeakingService {
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if cfg.ResultWait <= 0 {
		cfg.ResultWait = defaultResultWait
	}
	return &SpeakingService{
		deps:    deps,
		repo:    repo,
		queue:   queue,
		archive: archive,
		events:  events,
		cfg:     cfg,
		log:     log,
	}
}

// GeneratePrompt creates and stores a new cue card for userID.
func (s *SpeakingService) GeneratePrompt(ctx context.Context, userID string) (*repository.SpeakingQuestion, error) {
	facade, err := assessment.NewSpeakingFacade(ctx, s.deps, userID)
	if err != nil {
		return nil, err
	}
	defer facade.Close()

	prompt, err := facade.GeneratePrompt(ctx)
	if err != nil {
		return nil, err
	}

	q := &repository.SpeakingQuestion{UserID: userID, Title: prompt.Title, Content: prompt.Text}
	if err := s.repo.CreateSpeakingQuestion(ctx, q); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save speaking question", err)
	}

	s.log.Info().Str("user_id", userID).Int64("question_id", q.ID).Msg("Speaking question generated")
	return q, nil
}

// SubmitAudio transcribes an uploaded recording and grades it, in the
// background when a result queue is configured.
func (s *SpeakingService) SubmitAudio(ctx context.Context, userID string, questionID int64, audio []byte) (*SpeakingSubmission, error) {
	return s.submit(ctx, userID, questionID, audio, s.queue != nil)
}

// SubmitRecording grades a finished capture file synchronously.
func (s *SpeakingService) SubmitRecording(ctx context.Context, userID string, questionID int64, path string) (*SpeakingSubmission, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InternalWrap("failed to read recording", err)
	}
	return s.submit(ctx, userID, questionID, audio, false)
}

func (s *SpeakingService) submit(ctx context.Context, userID string, questionID int64, audio []byte, async bool) (*SpeakingSubmission, error) {
	q, err := s.repo.GetSpeakingQuestion(ctx, userID, questionID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load speaking question", err)
	}
	if q == nil {
		return nil, errors.NotFound("speaking question")
	}

	facade, err := assessment.NewSpeakingFacade(ctx, s.deps, userID)
	if err != nil {
		return nil, err
	}

	transcript, err := facade.Transcribe(ctx, audio)
	if err != nil {
		facade.Close()
		return nil, err
	}
	if strings.TrimSpace(transcript) == "" {
		facade.Close()
		return nil, errors.Input(errors.ReasonEmptyResponse, "no speech was recognised in the recording")
	}

	if !async {
		defer facade.Close()
		result, err := s.assess(ctx, facade, q, transcript, audio)
		if err != nil {
			return nil, err
		}
		return &SpeakingSubmission{Transcript: transcript, Result: result}, nil
	}

	requestID := fmt.Sprintf("req_%s", uuid.New().String()[:8])

	s.log.Info().
		Str("request_id", requestID).
		Str("user_id", userID).
		Int("transcript_len", len(transcript)).
		Msg("Audio transcribed, grading in background")

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer facade.Close()
		s.gradeInBackground(bg, requestID, facade, q, transcript, audio)
	}()

	return &SpeakingSubmission{RequestID: requestID, Transcript: transcript}, nil
}

// assess grades transcript, archives the audio and stores the answer.
func (s *SpeakingService) assess(ctx context.Context, facade *assessment.SpeakingFacade, q *repository.SpeakingQuestion, transcript string, audio []byte) (*SpeakingResult, error) {
	grade, err := facade.Grade(ctx, transcript, cueCard(q))
	if err != nil {
		return nil, err
	}

	answer := &repository.SpeakingAnswer{
		QuestionID:      q.ID,
		UserID:          q.UserID,
		Transcript:      transcript,
		AudioURL:        s.archiveAudio(ctx, q, audio),
		Grade:           grade.OverallScore,
		Fluency:         grade.SubScores[assessment.SubFluency],
		LexicalResource: grade.SubScores[assessment.SubLexicalResource],
		Grammar:         grade.SubScores[assessment.SubGrammar],
		Pronunciation:   grade.SubScores[assessment.SubPronunciation],
		Feedback:        grade.Feedback,
	}
	if err := s.repo.CreateSpeakingAnswer(ctx, answer); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save speaking answer", err)
	}

	publish(ctx, s.events, s.log, AttemptEvent{
		Type:       EventSpeakingGraded,
		UserID:     q.UserID,
		QuestionID: q.ID,
		AnswerID:   answer.ID,
		Score:      grade.OverallScore,
		SubScores:  grade.SubScores,
		AudioURL:   answer.AudioURL,
		OccurredAt: answer.CreatedAt,
	})

	s.log.Info().
		Str("user_id", q.UserID).
		Int64("answer_id", answer.ID).
		Float64("score", grade.OverallScore).
		Msg("Speaking answer graded")

	return &SpeakingResult{Status: StatusGraded, Answer: answer, Grade: &grade}, nil
}

// gradeInBackground is the producer side: it always pushes a result, a
// failed one included, so the consumer never waits for nothing.
func (s *SpeakingService) gradeInBackground(ctx context.Context, requestID string, facade *assessment.SpeakingFacade, q *repository.SpeakingQuestion, transcript string, audio []byte) {
	key := speakingResultKeyPrefix + requestID

	result, err := s.assess(ctx, facade, q, transcript, audio)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", requestID).Msg("Background grading failed")
		result = &SpeakingResult{Status: StatusFailed, Error: err.Error()}
	}
	result.RequestID = requestID

	if err := s.queue.RPush(ctx, key, result); err != nil {
		s.log.Error().Err(err).Str("request_id", requestID).Msg("Failed to push result to Redis")
		return
	}
	if err := s.queue.SetExpiry(ctx, key, s.cfg.ResultTTL); err != nil {
		s.log.Error().Err(err).Str("request_id", requestID).Msg("Failed to set Redis key expiry")
	}
}

// GetResult waits for a background grade. Each result is delivered once.
func (s *SpeakingService) GetResult(ctx context.Context, requestID string) (*SpeakingResult, error) {
	if s.queue == nil {
		return nil, errors.Internal("background grading is not enabled")
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, errors.Validation("request_id is required")
	}

	s.log.Debug().
		Str("request_id", requestID).
		Dur("timeout", s.cfg.ResultWait).
		Msg("Waiting for speaking result via BLPOP")

	data, err := s.queue.BLPop(ctx, s.cfg.ResultWait, speakingResultKeyPrefix+requestID)
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.Timeout("speaking result not ready, please try again")
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get speaking result from Redis", err)
	}

	var result SpeakingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.InternalWrap("failed to decode speaking result", err)
	}
	return &result, nil
}

// RecentAnswers returns the user's last five graded attempts, newest first.
func (s *SpeakingService) RecentAnswers(ctx context.Context, userID string) ([]repository.SpeakingAnswer, error) {
	answers, err := s.repo.RecentSpeakingAnswers(ctx, userID, recentLimit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load speaking answers", err)
	}
	return answers, nil
}

// Wait blocks until background grading has finished.
func (s *SpeakingService) Wait() {
	s.wg.Wait()
}

func (s *SpeakingService) archiveAudio(ctx context.Context, q *repository.SpeakingQuestion, audio []byte) string {
	if s.archive == nil {
		return ""
	}
	key := fmt.Sprintf("speaking/%s/%d/%s.wav", q.UserID, q.ID, uuid.New().String())
	url, err := s.archive.Upload(ctx, key, audio, "audio/wav")
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to archive recording")
		return ""
	}
	return url
}

func cueCard(q *repository.SpeakingQuestion) string {
	if q.Title == "" {
		return q.Content
	}
	return q.Title + "\n" + q.Content
}
