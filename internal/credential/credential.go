// Package credential resolves the provider keys a user has configured.
package credential

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
)

// Credential is a per-user snapshot of provider keys. A nil key means the
// user never stored one.
type Credential struct {
	UserID     string
	TextGenKey *string
	SpeechKey  *string
}

// TextGen returns the trimmed text-generation key and whether it is usable.
func (c *Credential) TextGen() (string, bool) {
	return usable(c.TextGenKey)
}

// Speech returns the trimmed speech-to-text key and whether it is usable.
func (c *Credential) Speech() (string, bool) {
	return usable(c.SpeechKey)
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (c *Credential) Clone() *Credential {
	out := &Credential{UserID: c.UserID}
	if c.TextGenKey != nil {
		v := *c.TextGenKey
		out.TextGenKey = &v
	}
	if c.SpeechKey != nil {
		v := *c.SpeechKey
		out.SpeechKey = &v
	}
	return out
}

func usable(key *string) (string, bool) {
	if key == nil {
		return "", false
	}
	v := strings.TrimSpace(*key)
	return v, v != ""
}

// Store loads a credential row. It returns (nil, nil) when the user has none.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
}

// Resolver turns a store lookup into a credential snapshot.
type Resolver struct {
	store Store
	log   zerolog.Logger
}

// NewResolver creates a Resolver over store.
func NewResolver(store Store, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns the user's credential. A missing row is
// CREDENTIAL_ERROR(NOT_FOUND) whatever keys a present row might hold.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Credential, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Validation("user id is required")
	}

	cred, err := r.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load credential", err)
	}
	if cred == nil {
		return nil, errors.Credential(errors.ReasonNotFound, "no API keys configured for this user")
	}

	out := cred.Clone()
	out.UserID = userID

	r.log.Debug().
		Str("user_id", userID).
		Bool("text_gen", out.TextGenKey != nil).
		Bool("speech", out.SpeechKey != nil).
		Msg("Credential resolved")

	return out, nil
}
