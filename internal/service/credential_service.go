package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/repository"
)

// CredentialCache drops cached credentials. Implemented by credential.CachedStore.
type CredentialCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// CredentialStatus is the settings view of a user's keys. Keys are masked.
type CredentialStatus struct {
	TextGenKey    string `json:"text_gen_key"`
	SpeechKey     string `json:"speech_key"`
	HasTextGenKey bool   `json:"has_text_gen_key"`
	HasSpeechKey  bool   `json:"has_speech_key"`
}

// CredentialService manages the provider keys on the settings screen.
type CredentialService struct {
	repo  repository.CredentialRepository
	cache CredentialCache
	log   zerolog.Logger
}

// NewCredentialService creates a CredentialService. cache may be nil.
func NewCredentialService(repo repository.CredentialRepository, cache CredentialCache, log zerolog.Logger) *CredentialService {
	return &CredentialService{repo: repo, cache: cache, log: log}
}

// Save stores both keys. Both are required.
func (s *CredentialService) Save(ctx context.Context, userID, textGenKey, speechKey string) (*CredentialStatus, error) {
	textGenKey = strings.TrimSpace(textGenKey)
	speechKey = strings.TrimSpace(speechKey)
	if textGenKey == "" || speechKey == "" {
		return nil, errors.Validation("both API keys are required")
	}

	cred := &credential.Credential{UserID: userID, TextGenKey: &textGenKey, SpeechKey: &speechKey}
	if err := s.repo.SaveCredential(ctx, cred); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to save API keys", err)
	}
	s.invalidate(ctx, userID)

	s.log.Info().Str("user_id", userID).Msg("API keys saved")
	return statusOf(cred), nil
}

// Get returns the masked keys.
func (s *CredentialService) Get(ctx context.Context, userID string) (*CredentialStatus, error) {
	cred, err := s.repo.GetCredential(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load API keys", err)
	}
	if cred == nil {
		return nil, errors.Credential(errors.ReasonNotFound, "no API keys configured for this user")
	}
	return statusOf(cred), nil
}

// Delete removes the user's keys.
func (s *CredentialService) Delete(ctx context.Context, userID string) error {
	ok, err := s.repo.DeleteCredential(ctx, userID)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete API keys", err)
	}
	s.invalidate(ctx, userID)
	if !ok {
		return errors.Credential(errors.ReasonNotFound, "no API keys configured for this user")
	}

	s.log.Info().Str("user_id", userID).Msg("API keys deleted")
	return nil
}

func (s *CredentialService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate credential cache")
	}
}

func statusOf(c *credential.Credential) *CredentialStatus {
	textGen, hasText := c.TextGen()
	speech, hasSpeech := c.Speech()
	return &CredentialStatus{
		TextGenKey:    maskKey(textGen),
		SpeechKey:     maskKey(speech),
		HasTextGenKey: hasText,
		HasSpeechKey:  hasSpeech,
	}
}

// maskKey keeps the first three and last four characters of long keys.
func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return strings.Repeat("*", len(key))
	default:
		return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
	}
}
