package repository

import (
	"context"
	"time"

	"github.com/windfall/ielts_service/internal/credential"
)

// WritingQuestion represents a row in writing_questions.
type WritingQuestion struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// WritingAnswer represents a row in writing_answers.
type WritingAnswer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	WordCount  int       `json:"word_count"`
	Grade      float64   `json:"grade"`
	Feedback   string    `json:"feedback"`
	CreatedAt  time.Time `json:"created_at"`
}

// SpeakingQuestion represents a row in speaking_questions.
type SpeakingQuestion struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SpeakingAnswer represents a row in speaking_answers.
type SpeakingAnswer struct {
	ID              int64     `json:"id"`
	QuestionID      int64     `json:"question_id"`
	UserID          string    `json:"user_id"`
	Transcript      string    `json:"transcript"`
	AudioURL        string    `json:"audio_url,omitempty"`
	Grade           float64   `json:"grade"`
	Fluency         float64   `json:"fluency"`
	LexicalResource float64   `json:"lexical_resource"`
	Grammar         float64   `json:"grammar"`
	Pronunciation   float64   `json:"pronunciation"`
	Feedback        string    `json:"feedback"`
	CreatedAt       time.Time `json:"created_at"`
}

// CredentialRepository stores per-user provider keys.
type CredentialRepository interface {
	credential.Store
	SaveCredential(ctx context.Context, cred *credential.Credential) error
	DeleteCredential(ctx context.Context, userID string) (bool, error)
}

// WritingRepository stores writing questions and answers. Lookups return
// (nil, nil) when no row matches.
type WritingRepository interface {
	CreateWritingQuestion(ctx context.Context, q *WritingQuestion) error
	GetWritingQuestion(ctx context.Context, userID string, id int64) (*WritingQuestion, error)
	CreateWritingAnswer(ctx context.Context, a *WritingAnswer) error
	RecentWritingAnswers(ctx context.Context, userID string, limit int) ([]WritingAnswer, error)
}

// SpeakingRepository stores speaking questions and answers.
type SpeakingRepository interface {
	CreateSpeakingQuestion(ctx context.Context, q *SpeakingQuestion) error
	GetSpeakingQuestion(ctx context.Context, userID string, id int64) (*SpeakingQuestion, error)
	CreateSpeakingAnswer(ctx context.Context, a *SpeakingAnswer) error
	RecentSpeakingAnswers(ctx context.Context, userID string, limit int) ([]SpeakingAnswer, error)
}

// ErrNotConfigured is returned by Postgres repositories built without a pool.
var ErrNotConfigured = &RepositoryError{Code: "NOT_CONFIGURED", Message: "database not configured"}

// RepositoryError represents a repository error.
type RepositoryError struct {
	Code    string
	Message string
}

func (e *RepositoryError) Error() string {
	return e.Code + ": " + e.Message
}
