package credential

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HashCache is the subset of client.RedisClient the cache needs.
type HashCache interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	fieldPresent  = "present"
	fieldTextGen  = "text_gen_key"
	fieldHasText  = "has_text_gen_key"
	fieldSpeech   = "speech_key"
	fieldHasSpeak = "has_speech_key"
)

// CachedStore is a read-through cache in front of a Store. Only rows that
// exist are cached; absence always reaches the backing store.
type CachedStore struct {
	next  Store
	cache HashCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedStore wraps next with a Redis hash cache.
func NewCachedStore(next Store, cache HashCache, ttl time.Duration, log zerolog.Logger) *CachedStore {
	return &CachedStore{next: next, cache: cache, ttl: ttl, log: log}
}

func cacheKey(userID string) string {
	return "credential:" + userID
}

// GetCredential implements Store.
func (s *CachedStore) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	key := cacheKey(userID)

	fields, err := s.cache.HGetAll(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Credential cache read failed")
	} else if fields[fieldPresent] == "1" {
		return fromFields(userID, fields), nil
	}

	cred, err := s.next.GetCredential(ctx, userID)
	if err != nil || cred == nil {
		return cred, err
	}

	if err := s.cache.HSet(ctx, key, toFields(cred)...); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Credential cache write failed")
		return cred, nil
	}
	if err := s.cache.SetExpiry(ctx, key, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Credential cache expiry failed")
	}
	return cred, nil
}

// Invalidate drops the cached row for userID.
func (s *CachedStore) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, cacheKey(userID))
}

func toFields(c *Credential) []interface{} {
	values := []interface{}{fieldPresent, "1"}
	values = appendKey(values, fieldHasText, fieldTextGen, c.TextGenKey)
	values = appendKey(values, fieldHasSpeak, fieldSpeech, c.SpeechKey)
	return values
}

// appendKey writes an explicit has-flag so a nil key overwrites a stale field.
func appendKey(values []interface{}, flag, field string, key *string) []interface{} {
	if key == nil {
		return append(values, flag, "0")
	}
	return append(values, flag, "1", field, *key)
}

func fromFields(userID string, fields map[string]string) *Credential {
	c := &Credential{UserID: userID}
	if fields[fieldHasText] == "1" {
		v := fields[fieldTextGen]
		c.TextGenKey = &v
	}
	if fields[fieldHasSpeak] == "1" {
		v := fields[fieldSpeech]
		c.SpeechKey = &v
	}
	return c
}
