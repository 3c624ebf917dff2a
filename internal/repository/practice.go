package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/windfall/ielts_service/internal/client"
)

// PostgresPracticeRepository implements WritingRepository and
// SpeakingRepository with PostgreSQL.
type PostgresPracticeRepository struct {
	db *client.PostgresClient
}

// NewPostgresPracticeRepository creates a new PostgresPracticeRepository.
func NewPostgresPracticeRepository(db *client.PostgresClient) *PostgresPracticeRepository {
	return &PostgresPracticeRepository{db: db}
}

// CreateWritingQuestion inserts q and fills its id and timestamp.
func (r *PostgresPracticeRepository) CreateWritingQuestion(ctx context.Context, q *WritingQuestion) error {
	if r.db == nil || r.db.Pool == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO writing_questions (user_id, content)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	if err := r.db.Pool.QueryRow(ctx, query, q.UserID, q.Content).Scan(&q.ID, &q.CreatedAt); err != nil {
		return fmt.Errorf("failed to create writing question: %w", err)
	}
	return nil
}

// GetWritingQuestion returns the user's question, or nil when missing.
func (r *PostgresPracticeRepository) GetWritingQuestion(ctx context.Context, userID string, id int64) (*WritingQuestion, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT id, user_id, content, created_at FROM writing_questions WHERE id = $1 AND user_id = $2`

	var q WritingQuestion
	err := r.db.Pool.QueryRow(ctx, query, id, userID).Scan(&q.ID, &q.UserID, &q.Content, &q.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get writing question: %w", err)
	}
	return &q, nil
}

// CreateWritingAnswer inserts a graded essay.
func (r *PostgresPracticeRepository) CreateWritingAnswer(ctx context.Context, a *WritingAnswer) error {
	if r.db == nil || r.db.Pool == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO writing_answers (question_id, user_id, content, word_count, grade, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		a.QuestionID,
		a.UserID,
		a.Content,
		a.WordCount,
		a.Grade,
		a.Feedback,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create writing answer: %w", err)
	}
	return nil
}

// RecentWritingAnswers returns the user's newest answers first.
func (r *PostgresPracticeRepository) RecentWritingAnswers(ctx context.Context, userID string, limit int) ([]WritingAnswer, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, ErrNotConfigured
	}

	query := `
		SELECT id, question_id, user_id, content, word_count, grade, feedback, created_at
		FROM writing_answers
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query writing answers: %w", err)
	}
	defer rows.Close()

	var answers []WritingAnswer
	for rows.Next() {
		var a WritingAnswer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Content, &a.WordCount, &a.Grade, &a.Feedback, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan writing answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CreateSpeakingQuestion inserts q and fills its id and timestamp.
func (r *PostgresPracticeRepository) CreateSpeakingQuestion(ctx context.Context, q *SpeakingQuestion) error {
	if r.db == nil || r.db.Pool == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO speaking_questions (user_id, title, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.db.Pool.QueryRow(ctx, query, q.UserID, q.Title, q.Content).Scan(&q.ID, &q.CreatedAt); err != nil {
		return fmt.Errorf("failed to create speaking question: %w", err)
	}
	return nil
}

// GetSpeakingQuestion returns the user's question, or nil when missing.
func (r *PostgresPracticeRepository) GetSpeakingQuestion(ctx context.Context, userID string, id int64) (*SpeakingQuestion, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT id, user_id, title, content, created_at FROM speaking_questions WHERE id = $1 AND user_id = $2`

	var q SpeakingQuestion
	err := r.db.Pool.QueryRow(ctx, query, id, userID).Scan(&q.ID, &q.UserID, &q.Title, &q.Content, &q.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get speaking question: %w", err)
	}
	return &q, nil
}

// CreateSpeakingAnswer inserts a graded spoken answer.
func (r *PostgresPracticeRepository) CreateSpeakingAnswer(ctx context.Context, a *SpeakingAnswer) error {
	if r.db == nil || r.db.Pool == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO speaking_answers (
			question_id, user_id, transcript, audio_url, grade,
			fluency, lexical_resource, grammar, pronunciation, feedback
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		a.QuestionID,
		a.UserID,
		a.Transcript,
		a.AudioURL,
		a.Grade,
		a.Fluency,
		a.LexicalResource,
		a.Grammar,
		a.Pronunciation,
		a.Feedback,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create speaking answer: %w", err)
	}
	return nil
}

// RecentSpeakingAnswers returns the user's newest answers first.
func (r *PostgresPracticeRepository) RecentSpeakingAnswers(ctx context.Context, userID string, limit int) ([]SpeakingAnswer, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, ErrNotConfigured
	}

	query := `
		SELECT id, question_id, user_id, transcript, COALESCE(audio_url, ''), grade,
		       fluency, lexical_resource, grammar, pronunciation, feedback, created_at
		FROM speaking_answers
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query speaking answers: %w", err)
	}
	defer rows.Close()

	var answers []SpeakingAnswer
	for rows.Next() {
		var a SpeakingAnswer
		if err := rows.Scan(
			&a.ID,
			&a.QuestionID,
			&a.UserID,
			&a.Transcript,
			&a.AudioURL,
			&a.Grade,
			&a.Fluency,
			&a.LexicalResource,
			&a.Grammar,
			&a.Pronunciation,
			&a.Feedback,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan speaking answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
