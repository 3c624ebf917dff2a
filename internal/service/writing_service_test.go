package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/windfall/ielts_service/internal/assessment"
	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/logger"
)

func TestWritingServiceRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.saveKeys(t, "u1", strPtr("sk-1"), nil)
	f.prompts.reply = `{"Content": "Should cities ban private cars?"}`
	f.grades.reply = "Here you go: {\"score\": 7.5, \"feedback\": \"Clear position.\"}"
	pub := &fakePublisher{}

	svc := NewWritingService(f.deps, f.store, pub, logger.NewNop())
	ctx := context.Background()

	q, err := svc.GeneratePrompt(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePrompt: %v", err)
	}
	if q.ID == 0 || q.Content != "Should cities ban private cars?" {
		t.Fatalf("question = %+v", q)
	}

	res, err := svc.SubmitEssay(ctx, "u1", q.ID, "Cars  pollute\nthe air.")
	if err != nil {
		t.Fatalf("SubmitEssay: %v", err)
	}
	if res.Grade.OverallScore != 7.5 || res.Grade.Feedback != "Clear position." {
		t.Errorf("grade = %+v", res.Grade)
	}
	if res.WordCount != 4 || res.Answer.WordCount != 4 {
		t.Errorf("word count = %d / %d, want 4", res.WordCount, res.Answer.WordCount)
	}

	events := pub.all()
	if len(events) != 1 || events[0].Type != EventWritingGraded || events[0].AnswerID != res.Answer.ID {
		t.Errorf("events = %+v", events)
	}

	recent, err := svc.RecentAnswers(ctx, "u1")
	if err != nil {
		t.Fatalf("RecentAnswers: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != res.Answer.ID {
		t.Errorf("recent = %+v", recent)
	}
}

func TestWritingServiceFallbackPrompt(t *testing.T) {
	f := newFixture(t)
	f.saveKeys(t, "u1", strPtr("sk-1"), nil)
	f.prompts.reply = "I cannot produce JSON today."

	svc := NewWritingService(f.deps, f.store, nil, logger.NewNop())
	q, err := svc.GeneratePrompt(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GeneratePrompt: %v", err)
	}
	if q.Content != assessment.FallbackWritingPrompt.Text {
		t.Errorf("content = %q, want fallback", q.Content)
	}
}

func TestWritingServiceUnknownQuestion(t *testing.T) {
	f := newFixture(t)
	f.saveKeys(t, "u1", strPtr("sk-1"), nil)

	svc := NewWritingService(f.deps, f.store, nil, logger.NewNop())
	_, err := svc.SubmitEssay(context.Background(), "u1", 42, "An essay.")
	appErr, ok := errors.As(err)
	if !ok || appErr.Code != errors.ErrNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if f.grades.calls != 0 {
		t.Errorf("grader called %d times", f.grades.calls)
	}
}

func TestWritingServiceQuestionOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t)
	f.saveKeys(t, "u1", strPtr("sk-1"), nil)
	f.saveKeys(t, "u2", strPtr("sk-2"), nil)
	f.prompts.reply = `{"Content": "Topic"}`

	svc := NewWritingService(f.deps, f.store, nil, logger.NewNop())
	q, err := svc.GeneratePrompt(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GeneratePrompt: %v", err)
	}
	if _, err := svc.SubmitEssay(context.Background(), "u2", q.ID, "An essay."); err == nil {
		t.Fatal("expected error for foreign question")
	}
}

func TestWritingServiceEmptyEssay(t *testing.T) {
	f := newFixture(t)
	f.saveKeys(t, "u1", strPtr("sk-1"), nil)
	f.prompts.reply = `{"Content": "Topic"}`

	svc := NewWritingService(f.deps, f.store, nil, logger.NewNop())
	q, _ := svc.GeneratePrompt(context.Background(), "u1")

	_, err := svc.SubmitEssay(context.Background(), "u1", q.ID, "   ")
	if !stderrors.Is(err, errors.ErrEmptyResponse) {
		t.Fatalf("err = %v, want EMPTY_RESPONSE", err)
	}
}

func TestWritingServiceMissingCredential(t *testing.T) {
	f := newFixture(t)
	svc := NewWritingService(f.deps, f.store, nil, logger.NewNop())

	_, err := svc.GeneratePrompt(context.Background(), "nobody")
	if !stderrors.Is(err, errors.ErrCredentialNotFound) {
		t.Fatalf("err = %v, want credential not found", err)
	}

	f.saveKeys(t, "u1", nil, strPtr("dg-1"))
	_, err = svc.GeneratePrompt(context.Background(), "u1")
	if !stderrors.Is(err, errors.ErrMissingKey) {
		t.Fatalf("err = %v, want missing key", err)
	}
}

func TestCountWords(t *testing.T) {
	tests := map[string]int{
		"":                 0,
		"  ":               0,
		"one":              1,
		"one two\tthree\n": 3,
	}
	for in, want := range tests {
		if got := CountWords(in); got != want {
			t.Errorf("CountWords(%q) = %d, want %d", in, got, want)
		}
	}
}
