package credential

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/logger"
)

func strPtr(s string) *string { return &s }

type fakeStore struct {
	mu    sync.Mutex
	rows  map[string]*Credential
	err   error
	calls int
}

func (f *fakeStore) GetCredential(_ context.Context, userID string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	return c, nil
}

type fakeHash struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	ttl     map[string]time.Duration
	readErr error
}

func newFakeHash() *fakeHash {
	return &fakeHash{data: map[string]map[string]string{}, ttl: map[string]time.Duration{}}
}

func (h *fakeHash) HGetAll(_ context.Context, key string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, h.readErr
	}
	out := map[string]string{}
	for k, v := range h.data[key] {
		out[k] = v
	}
	return out, nil
}

func (h *fakeHash) HSet(_ context.Context, key string, values ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.data[key]
	if m == nil {
		m = map[string]string{}
		h.data[key] = m
	}
	for i := 0; i+1 < len(values); i += 2 {
		m[values[i].(string)] = values[i+1].(string)
	}
	return nil
}

func (h *fakeHash) SetExpiry(_ context.Context, key string, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ttl[key] = ttl
	return nil
}

func (h *fakeHash) Delete(_ context.Context, keys ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		delete(h.data, k)
	}
	return nil
}

func TestResolve_MissingRowIsNotFound(t *testing.T) {
	r := NewResolver(&fakeStore{rows: map[string]*Credential{}}, logger.NewNop())

	_, err := r.Resolve(context.Background(), "u1")
	if !stderrors.Is(err, errors.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found, got %v", err)
	}
}

func TestResolve_PresentRowWithBlankKeys(t *testing.T) {
	store := &fakeStore{rows: map[string]*Credential{
		"u1": {TextGenKey: strPtr("  "), SpeechKey: nil},
	}}
	r := NewResolver(store, logger.NewNop())

	cred, err := r.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.UserID != "u1" {
		t.Errorf("UserID = %q", cred.UserID)
	}
	if _, ok := cred.TextGen(); ok {
		t.Error("blank text-gen key should not be usable")
	}
	if _, ok := cred.Speech(); ok {
		t.Error("nil speech key should not be usable")
	}
}

func TestResolve_ReturnsSnapshot(t *testing.T) {
	row := &Credential{TextGenKey: strPtr("sk-1")}
	r := NewResolver(&fakeStore{rows: map[string]*Credential{"u1": row}}, logger.NewNop())

	cred, err := r.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	*row.TextGenKey = "sk-2"
	if key, _ := cred.TextGen(); key != "sk-1" {
		t.Fatalf("snapshot changed with the store row: %q", key)
	}
}

func TestResolve_StoreErrorIsDatabaseError(t *testing.T) {
	r := NewResolver(&fakeStore{err: stderrors.New("connection reset")}, logger.NewNop())

	_, err := r.Resolve(context.Background(), "u1")
	appErr, ok := errors.As(err)
	if !ok || appErr.Code != errors.ErrDatabase {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestResolve_BlankUserID(t *testing.T) {
	r := NewResolver(&fakeStore{}, logger.NewNop())
	if _, err := r.Resolve(context.Background(), " "); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	store := &fakeStore{rows: map[string]*Credential{
		"u1": {TextGenKey: strPtr("sk-1"), SpeechKey: strPtr("dg-1")},
	}}
	hash := newFakeHash()
	cached := NewCachedStore(store, hash, 5*time.Minute, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := cached.GetCredential(ctx, "u1")
		if err != nil {
			t.Fatalf("GetCredential: %v", err)
		}
		if k, _ := c.Speech(); k != "dg-1" {
			t.Fatalf("speech key = %q", k)
		}
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
	if hash.ttl["credential:u1"] != 5*time.Minute {
		t.Errorf("ttl = %v", hash.ttl["credential:u1"])
	}

	store.rows["u1"] = &Credential{TextGenKey: strPtr("sk-2")}
	if err := cached.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	c, err := cached.GetCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if k, _ := c.TextGen(); k != "sk-2" {
		t.Errorf("text-gen key after invalidate = %q", k)
	}
	if c.SpeechKey != nil {
		t.Errorf("speech key should be nil after invalidate, got %q", *c.SpeechKey)
	}
}

func TestCachedStore_AbsenceIsNotCached(t *testing.T) {
	store := &fakeStore{rows: map[string]*Credential{}}
	cached := NewCachedStore(store, newFakeHash(), time.Minute, logger.NewNop())

	for i := 0; i < 2; i++ {
		if c, err := cached.GetCredential(context.Background(), "ghost"); c != nil || err != nil {
			t.Fatalf("GetCredential = %v, %v", c, err)
		}
	}
	if store.calls != 2 {
		t.Fatalf("store calls = %d, want 2", store.calls)
	}
}

func TestCachedStore_ReadErrorFallsBack(t *testing.T) {
	store := &fakeStore{rows: map[string]*Credential{"u1": {TextGenKey: strPtr("sk")}}}
	hash := newFakeHash()
	hash.readErr = stderrors.New("redis down")
	cached := NewCachedStore(store, hash, time.Minute, logger.NewNop())

	c, err := cached.GetCredential(context.Background(), "u1")
	if err != nil || c == nil {
		t.Fatalf("GetCredential = %v, %v", c, err)
	}
}
