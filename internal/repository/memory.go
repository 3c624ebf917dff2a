package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/windfall/ielts_service/internal/credential"
)

// table is a mutex-guarded in-memory table with int64 identities.
type table[T any] struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) insert(build func(id int64) T) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	row := build(t.nextID)
	t.rows[t.nextID] = row
	return row
}

func (t *table[T]) get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	return row, ok
}

// newest returns up to limit rows matching keep, highest id first.
func (t *table[T]) newest(limit int, keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.rows))
	for id, row := range t.rows {
		if keep(row) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

// MemoryStore implements every repository in memory. It backs the service
// when no DATABASE_URL is configured.
type MemoryStore struct {
	now func() time.Time

	credMu sync.RWMutex
	creds  map[string]*credential.Credential

	writingQuestions  *table[WritingQuestion]
	writingAnswers    *table[WritingAnswer]
	speakingQuestions *table[SpeakingQuestion]
	speakingAnswers   *table[SpeakingAnswer]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:               time.Now,
		creds:             make(map[string]*credential.Credential),
		writingQuestions:  newTable[WritingQuestion](),
		writingAnswers:    newTable[WritingAnswer](),
		speakingQuestions: newTable[SpeakingQuestion](),
		speakingAnswers:   newTable[SpeakingAnswer](),
	}
}

// GetCredential implements credential.Store.
func (m *MemoryStore) GetCredential(_ context.Context, userID string) (*credential.Credential, error) {
	m.credMu.RLock()
	defer m.credMu.RUnlock()
	c, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

// SaveCredential upserts the user's keys.
func (m *MemoryStore) SaveCredential(_ context.Context, cred *credential.Credential) error {
	m.credMu.Lock()
	defer m.credMu.Unlock()
	m.creds[cred.UserID] = cred.Clone()
	return nil
}

// DeleteCredential removes the user's keys and reports whether a row existed.
func (m *MemoryStore) DeleteCredential(_ context.Context, userID string) (bool, error) {
	m.credMu.Lock()
	defer m.credMu.Unlock()
	_, ok := m.creds[userID]
	delete(m.creds, userID)
	return ok, nil
}

// CreateWritingQuestion implements WritingRepository.
func (m *MemoryStore) CreateWritingQuestion(_ context.Context, q *WritingQuestion) error {
	row := m.writingQuestions.insert(func(id int64) WritingQuestion {
		q.ID, q.CreatedAt = id, m.now()
		return *q
	})
	*q = row
	return nil
}

// GetWritingQuestion implements WritingRepository.
func (m *MemoryStore) GetWritingQuestion(_ context.Context, userID string, id int64) (*WritingQuestion, error) {
	q, ok := m.writingQuestions.get(id)
	if !ok || q.UserID != userID {
		return nil, nil
	}
	return &q, nil
}

// CreateWritingAnswer implements WritingRepository.
func (m *MemoryStore) CreateWritingAnswer(_ context.Context, a *WritingAnswer) error {
	row := m.writingAnswers.insert(func(id int64) WritingAnswer {
		a.ID, a.CreatedAt = id, m.now()
		return *a
	})
	*a = row
	return nil
}

// RecentWritingAnswers implements WritingRepository.
func (m *MemoryStore) RecentWritingAnswers(_ context.Context, userID string, limit int) ([]WritingAnswer, error) {
	return m.writingAnswers.newest(limit, func(a WritingAnswer) bool { return a.UserID == userID }), nil
}

// CreateSpeakingQuestion implements SpeakingRepository.
func (m *MemoryStore) CreateSpeakingQuestion(_ context.Context, q *SpeakingQuestion) error {
	row := m.speakingQuestions.insert(func(id int64) SpeakingQuestion {
		q.ID, q.CreatedAt = id, m.now()
		return *q
	})
	*q = row
	return nil
}

// GetSpeakingQuestion implements SpeakingRepository.
func (m *MemoryStore) GetSpeakingQuestion(_ context.Context, userID string, id int64) (*SpeakingQuestion, error) {
	q, ok := m.speakingQuestions.get(id)
	if !ok || q.UserID != userID {
		return nil, nil
	}
	return &q, nil
}

// CreateSpeakingAnswer implements SpeakingRepository.
func (m *MemoryStore) CreateSpeakingAnswer(_ context.Context, a *SpeakingAnswer) error {
	row := m.speakingAnswers.insert(func(id int64) SpeakingAnswer {
		a.ID, a.CreatedAt = id, m.now()
		return *a
	})
	*a = row
	return nil
}

// RecentSpeakingAnswers implements SpeakingRepository.
func (m *MemoryStore) RecentSpeakingAnswers(_ context.Context, userID string, limit int) ([]SpeakingAnswer, error) {
	return m.speakingAnswers.newest(limit, func(a SpeakingAnswer) bool { return a.UserID == userID }), nil
}
