package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/windfall/ielts_service/internal/assessment"
	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/logger"
	"github.com/windfall/ielts_service/internal/repository"
)

func strPtr(s string) *string { return &s }

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Complete(_ context.Context, _ string, _ client.ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

type fakeSpeech struct {
	mu     sync.Mutex
	text   string
	err    error
	closed int
}

func (s *fakeSpeech) Name() string { return "deepgram" }

func (s *fakeSpeech) Transcribe(_ context.Context, _ string, _ []byte, _ client.TranscribeOptions) (*client.TranscriptionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	resp := &client.TranscriptionResponse{}
	resp.Results.Channels = []client.DeepgramChannel{{
		Alternatives: []client.DeepgramAlternative{{Transcript: s.text}},
	}}
	return resp, nil
}

func (s *fakeSpeech) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSpeech) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePublisher struct {
	mu     sync.Mutex
	events []AttemptEvent
}

func (p *fakePublisher) Publish(_ context.Context, data interface{}, attrs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	event := data.(AttemptEvent)
	if attrs["type"] != event.Type {
		return fmt.Errorf("type attribute %q does not match %q", attrs["type"], event.Type)
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) all() []AttemptEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]AttemptEvent(nil), p.events...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchiver) Upload(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key+"|"+contentType)
	return "r2://recordings/" + key, nil
}

// fakeQueue mimics RPUSH/BLPOP with one buffered channel per key.
type fakeQueue struct {
	mu    sync.Mutex
	lists map[string]chan []byte
	ttls  map[string]time.Duration
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{lists: map[string]chan []byte{}, ttls: map[string]time.Duration{}}
}

func (q *fakeQueue) list(key string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.lists[key]
	if !ok {
		ch = make(chan []byte, 8)
		q.lists[key] = ch
	}
	return ch
}

func (q *fakeQueue) RPush(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	q.list(key) <- data
	return nil
}

func (q *fakeQueue) SetExpiry(_ context.Context, key string, ttl time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ttls[key] = ttl
	return nil
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, key string) ([]byte, error) {
	select {
	case data := <-q.list(key):
		return data, nil
	case <-time.After(timeout):
		return nil, redis.Nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *fakeQueue) ttl(key string) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ttls[key]
}

type fixture struct {
	store   *repository.MemoryStore
	prompts *fakeGenerator
	grades  *fakeGenerator
	speech  *fakeSpeech
	deps    assessment.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   repository.NewMemoryStore(),
		prompts: &fakeGenerator{},
		grades:  &fakeGenerator{},
		speech:  &fakeSpeech{},
	}
	log := logger.NewNop()
	f.deps = assessment.Deps{
		Resolver: credential.NewResolver(f.store, log),
		Prompts:  assessment.NewPromptModule(f.prompts, assessment.WithLogger(log)),
		Grader:   assessment.NewGradingModule(f.grades, assessment.WithLogger(log)),
		OpenSpeech: func() (assessment.SpeechClient, error) {
			return f.speech, nil
		},
	}
	return f
}

func (f *fixture) saveKeys(t *testing.T, userID string, textGen, speech *string) {
	t.Helper()
	cred := &credential.Credential{UserID: userID, TextGenKey: textGen, SpeechKey: speech}
	if err := f.store.SaveCredential(context.Background(), cred); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
}
