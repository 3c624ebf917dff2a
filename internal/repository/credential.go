package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/credential"
)

// PostgresCredentialRepository stores keys in api_keys.
type PostgresCredentialRepository struct {
	db *client.PostgresClient
}

// NewPostgresCredentialRepository creates a new PostgresCredentialRepository.
func NewPostgresCredentialRepository(db *client.PostgresClient) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

// GetCredential returns the user's keys, or nil when the user has no row.
func (r *PostgresCredentialRepository) GetCredential(ctx context.Context, userID string) (*credential.Credential, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT user_id, text_gen_key, speech_key FROM api_keys WHERE user_id = $1`

	var c credential.Credential
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.TextGenKey, &c.SpeechKey)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api keys: %w", err)
	}

	return &c, nil
}

// SaveCredential upserts the user's keys.
func (r *PostgresCredentialRepository) SaveCredential(ctx context.Context, cred *credential.Credential) error {
	if r.db == nil || r.db.Pool == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO api_keys (user_id, text_gen_key, speech_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET text_gen_key = EXCLUDED.text_gen_key,
		    speech_key = EXCLUDED.speech_key,
		    updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, cred.UserID, cred.TextGenKey, cred.SpeechKey); err != nil {
		return fmt.Errorf("failed to save api keys: %w", err)
	}
	return nil
}

// DeleteCredential removes the user's keys and reports whether a row existed.
func (r *PostgresCredentialRepository) DeleteCredential(ctx context.Context, userID string) (bool, error) {
	if r.db == nil || r.db.Pool == nil {
		return false, ErrNotConfigured
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete api keys: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
