package assessment

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
)

func strPtr(s string) *string { return &s }

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []client.ChatRequest
	keys  []string
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Complete(_ context.Context, apiKey string, req client.ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	g.keys = append(g.keys, apiKey)
	return g.reply, g.err
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

type stubSpeech struct {
	mu     sync.Mutex
	resp   *client.TranscriptionResponse
	err    error
	calls  int
	closed int
	opts   client.TranscribeOptions
}

func (s *stubSpeech) Name() string { return "deepgram" }

func (s *stubSpeech) Transcribe(_ context.Context, _ string, _ []byte, opts client.TranscribeOptions) (*client.TranscriptionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.opts = opts
	return s.resp, s.err
}

func (s *stubSpeech) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func transcript(text string) *client.TranscriptionResponse {
	resp := &client.TranscriptionResponse{}
	resp.Results.Channels = []client.DeepgramChannel{{
		Alternatives: []client.DeepgramAlternative{{Transcript: text}},
	}}
	return resp
}

type stubResolver struct {
	creds map[string]*credential.Credential
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, userID string) (*credential.Credential, error) {
	r.calls++
	c, ok := r.creds[userID]
	if !ok {
		return nil, errors.Credential(errors.ReasonNotFound, "no API keys configured for this user")
	}
	return c.Clone(), nil
}

func fullCredential() *credential.Credential {
	return &credential.Credential{UserID: "u1", TextGenKey: strPtr("sk-1"), SpeechKey: strPtr("dg-1")}
}

func TestGrade_WritingScenario(t *testing.T) {
	gen := &stubGenerator{reply: `{"score": 4.5, "feedback": "Too short."}`}
	m := NewGradingModule(gen)

	got, err := m.Grade(context.Background(), Writing, "The cat sat.", "Discuss cats.", fullCredential())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.OverallScore != 4.5 || got.Feedback != "Too short." {
		t.Errorf("result = %+v", got)
	}
	if got.SubScores == nil || len(got.SubScores) != 0 {
		t.Errorf("writing sub-scores = %#v, want empty map", got.SubScores)
	}

	req := gen.reqs[0]
	if req.Model != DefaultModel || req.Temperature != 0.7 {
		t.Errorf("request model/temperature = %s/%v", req.Model, req.Temperature)
	}
	if !strings.Contains(req.Messages[0].Content, "The cat sat.") || !strings.Contains(req.Messages[0].Content, "Discuss cats.") {
		t.Error("grading prompt must carry the essay and the task")
	}
	if gen.keys[0] != "sk-1" {
		t.Errorf("key = %q", gen.keys[0])
	}
}

func TestGrade_NonJSONReturnsWritingFallback(t *testing.T) {
	m := NewGradingModule(&stubGenerator{reply: "I cannot grade this."})

	got, err := m.Grade(context.Background(), Writing, "An essay.", "A task.", fullCredential())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.OverallScore != 6.0 || got.Feedback != "Default fallback: parsing failed." {
		t.Errorf("result = %+v", got)
	}
	if got.SubScores == nil {
		t.Error("fallback sub-scores are nil")
	}
	got.SubScores["x"] = 1
	if len(FallbackWritingGrade.SubScores) != 0 {
		t.Error("fallback map was shared")
	}
}

func TestGrade_SpeakingSubScores(t *testing.T) {
	gen := &stubGenerator{reply: "```json\n{\"score\": 7, \"Fluency\": 7.5, \"LexicalResource\": 6.5, \"Grammar\": 7, \"Pronunciation\": 8, \"feedback\": \"Good.\"}\n```"}
	m := NewGradingModule(gen)

	got, err := m.Grade(context.Background(), Speaking, "I went to the beach.", "Describe a trip.", fullCredential())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	want := map[string]float64{SubFluency: 7.5, SubLexicalResource: 6.5, SubGrammar: 7, SubPronunciation: 8}
	for k, v := range want {
		if got.SubScores[k] != v {
			t.Errorf("%s = %v, want %v", k, got.SubScores[k], v)
		}
	}
	if got.OverallScore != 7 {
		t.Errorf("overall = %v", got.OverallScore)
	}
	if gen.reqs[0].Temperature != 0.6 {
		t.Errorf("temperature = %v", gen.reqs[0].Temperature)
	}
}

func TestGrade_SpeakingFallbackIsNotShared(t *testing.T) {
	m := NewGradingModule(&stubGenerator{reply: `{"score": 7}`})

	got, err := m.Grade(context.Background(), Speaking, "words", "topic", fullCredential())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.Feedback != FallbackSpeakingGrade.Feedback || got.SubScores[SubGrammar] != 6.0 {
		t.Fatalf("result = %+v", got)
	}
	got.SubScores[SubGrammar] = 1
	if FallbackSpeakingGrade.SubScores[SubGrammar] != 6.0 {
		t.Fatal("fallback map was mutated through a result")
	}
}

func TestGrade_OutOfRangeScoreIsKept(t *testing.T) {
	m := NewGradingModule(&stubGenerator{reply: `{"score": 12, "feedback": "odd"}`})

	got, err := m.Grade(context.Background(), Writing, "essay", "task", fullCredential())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if got.OverallScore != 12 {
		t.Fatalf("overall = %v", got.OverallScore)
	}
}

func TestGrade_InputErrors(t *testing.T) {
	gen := &stubGenerator{reply: `{"score": 5, "feedback": "x"}`}
	m := NewGradingModule(gen)

	_, err := m.Grade(context.Background(), Writing, "  ", "task", fullCredential())
	if !stderrors.Is(err, errors.ErrEmptyResponse) {
		t.Errorf("blank response: %v", err)
	}
	_, err = m.Grade(context.Background(), Writing, "essay", "", fullCredential())
	if !stderrors.Is(err, errors.ErrMissingPrompt) {
		t.Errorf("blank prompt: %v", err)
	}
	if gen.calls() != 0 {
		t.Errorf("provider called %d times for invalid input", gen.calls())
	}
}

func TestGrade_TransportErrorPropagates(t *testing.T) {
	cause := errors.Provider("openai", errors.ReasonRateLimited, stderrors.New("429"))
	m := NewGradingModule(&stubGenerator{err: cause})

	_, err := m.Grade(context.Background(), Writing, "essay", "task", fullCredential())
	if !stderrors.Is(err, errors.ErrProviderRateLimited) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerate_Prompts(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		reply string
		want  Prompt
	}{
		{"writing", Writing, `{"Content": "Should cities ban cars?"}`, Prompt{Kind: Writing, Text: "Should cities ban cars?"}},
		{"writing blank content", Writing, `{"Content": "   "}`, FallbackWritingPrompt},
		{"writing prose", Writing, "Sure!", FallbackWritingPrompt},
		{"speaking", Speaking, `Here: {"Title": "Card", "Content": "Describe a teacher."}`, Prompt{Kind: Speaking, Title: "Card", Text: "Describe a teacher."}},
		{"speaking blank title", Speaking, `{"Title": "", "Content": "Describe a teacher."}`, Prompt{Kind: Speaking, Title: SpeakingPromptTitle, Text: "Describe a teacher."}},
		{"speaking missing title", Speaking, `{"Content": "Describe a teacher."}`, FallbackSpeakingPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{reply: tt.reply}
			got, err := NewPromptModule(gen, WithModel("gpt-test")).Generate(context.Background(), tt.kind, fullCredential())
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if got != tt.want {
				t.Errorf("prompt = %+v, want %+v", got, tt.want)
			}
			if gen.reqs[0].Model != "gpt-test" {
				t.Errorf("model = %s", gen.reqs[0].Model)
			}
		})
	}
}

func TestGenerate_MissingKey(t *testing.T) {
	gen := &stubGenerator{}
	cred := &credential.Credential{UserID: "u1", TextGenKey: strPtr(" ")}

	_, err := NewPromptModule(gen).Generate(context.Background(), Writing, cred)
	if !stderrors.Is(err, errors.ErrMissingKey) {
		t.Fatalf("err = %v", err)
	}
	if gen.calls() != 0 {
		t.Fatal("provider called without a key")
	}
}

func TestTranscribe_EmptyAudioSkipsProvider(t *testing.T) {
	speech := &stubSpeech{resp: transcript("hello")}
	m, err := NewTranscriptionModule(func() (SpeechClient, error) { return speech, nil })
	if err != nil {
		t.Fatalf("NewTranscriptionModule: %v", err)
	}

	_, err = m.Transcribe(context.Background(), nil, fullCredential())
	if !stderrors.Is(err, errors.ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}
	if speech.calls != 0 {
		t.Fatalf("provider calls = %d, want 0", speech.calls)
	}
}

func TestTranscribe_FirstAlternative(t *testing.T) {
	resp := transcript("first")
	resp.Results.Channels[0].Alternatives = append(resp.Results.Channels[0].Alternatives, client.DeepgramAlternative{Transcript: "second"})
	resp.Results.Channels = append(resp.Results.Channels, client.DeepgramChannel{
		Alternatives: []client.DeepgramAlternative{{Transcript: "other channel"}},
	})
	speech := &stubSpeech{resp: resp}
	m, _ := NewTranscriptionModule(func() (SpeechClient, error) { return speech, nil })

	got, err := m.Transcribe(context.Background(), []byte{1, 2}, fullCredential())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "first" {
		t.Errorf("transcript = %q", got)
	}
	if speech.opts.Model != "nova-3" || speech.opts.Language != "en" || !speech.opts.SmartFormat || !speech.opts.Paragraphs {
		t.Errorf("options = %+v", speech.opts)
	}
}

func TestTranscribe_NoAlternatives(t *testing.T) {
	speech := &stubSpeech{resp: &client.TranscriptionResponse{}}
	m, _ := NewTranscriptionModule(func() (SpeechClient, error) { return speech, nil })

	got, err := m.Transcribe(context.Background(), []byte{1}, fullCredential())
	if err != nil || got != "" {
		t.Fatalf("Transcribe = %q, %v; want empty transcript and no error", got, err)
	}
}

func TestTranscribe_NilResponseIsInvalid(t *testing.T) {
	speech := &stubSpeech{}
	m, _ := NewTranscriptionModule(func() (SpeechClient, error) { return speech, nil })

	_, err := m.Transcribe(context.Background(), []byte{1}, fullCredential())
	if !stderrors.Is(err, errors.ErrProviderInvalidResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestTranscriptionModule_CloseReleasesOnce(t *testing.T) {
	speech := &stubSpeech{resp: transcript("x")}
	m, _ := NewTranscriptionModule(func() (SpeechClient, error) { return speech, nil })

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if speech.closed != 1 {
		t.Fatalf("closed = %d, want 1", speech.closed)
	}
	if _, err := m.Transcribe(context.Background(), []byte{1}, fullCredential()); err == nil {
		t.Fatal("expected error after Close")
	}
}

func newDeps(resolver Resolver, gen TextGenerator, speech *stubSpeech, opened *int) Deps {
	return Deps{
		Resolver: resolver,
		Prompts:  NewPromptModule(gen),
		Grader:   NewGradingModule(gen),
		OpenSpeech: func() (SpeechClient, error) {
			*opened++
			return speech, nil
		},
	}
}

func TestFacades_SpeechKeyOnlyRequiredForSpeaking(t *testing.T) {
	resolver := &stubResolver{creds: map[string]*credential.Credential{
		"u1": {UserID: "u1", TextGenKey: strPtr("sk-1")},
	}}
	opened := 0
	deps := newDeps(resolver, &stubGenerator{reply: `{"Content": "Q?"}`}, &stubSpeech{}, &opened)

	_, err := NewSpeakingFacade(context.Background(), deps, "u1")
	if !stderrors.Is(err, errors.ErrMissingKey) {
		t.Fatalf("speaking facade err = %v", err)
	}
	if opened != 0 {
		t.Fatal("speech client acquired before key validation")
	}

	w, err := NewWritingFacade(context.Background(), deps, "u1")
	if err != nil {
		t.Fatalf("writing facade: %v", err)
	}
	p, err := w.GeneratePrompt(context.Background())
	if err != nil || p.Text != "Q?" {
		t.Fatalf("GeneratePrompt = %+v, %v", p, err)
	}
}

func TestFacades_UnknownUser(t *testing.T) {
	opened := 0
	deps := newDeps(&stubResolver{creds: map[string]*credential.Credential{}}, &stubGenerator{}, &stubSpeech{}, &opened)

	if _, err := NewWritingFacade(context.Background(), deps, "ghost"); !stderrors.Is(err, errors.ErrCredentialNotFound) {
		t.Errorf("writing err = %v", err)
	}
	if _, err := NewSpeakingFacade(context.Background(), deps, "ghost"); !stderrors.Is(err, errors.ErrCredentialNotFound) {
		t.Errorf("speaking err = %v", err)
	}
}

func TestSpeakingFacade_FullFlow(t *testing.T) {
	resolver := &stubResolver{creds: map[string]*credential.Credential{"u1": fullCredential()}}
	gen := &stubGenerator{reply: `{"score": 6.5, "Fluency": 6, "LexicalResource": 7, "Grammar": 6, "Pronunciation": 7, "feedback": "ok"}`}
	speech := &stubSpeech{resp: transcript("I like my hometown.")}
	opened := 0

	f, err := NewSpeakingFacade(context.Background(), newDeps(resolver, gen, speech, &opened), "u1")
	if err != nil {
		t.Fatalf("NewSpeakingFacade: %v", err)
	}
	if f.UserID() != "u1" || opened != 1 || resolver.calls != 1 {
		t.Fatalf("user=%s opened=%d resolves=%d", f.UserID(), opened, resolver.calls)
	}

	text, err := f.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	grade, err := f.Grade(context.Background(), text, "Describe your hometown.")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if grade.OverallScore != 6.5 || grade.SubScores[SubLexicalResource] != 7 {
		t.Errorf("grade = %+v", grade)
	}
	if resolver.calls != 1 {
		t.Errorf("credential resolved %d times", resolver.calls)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if speech.closed != 1 {
		t.Errorf("closed = %d", speech.closed)
	}
}

func TestPreview_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 199) + "é" + strings.Repeat("b", 10)
	got := preview(s)
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("a", 199)+"..." {
		t.Errorf("preview = %q", got)
	}
	if short := "naïve"; preview(short) != short {
		t.Errorf("short preview = %q", preview(short))
	}
}
