package client

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/windfall/ielts_service/internal/errors"
)

func TestReasonForStatus(t *testing.T) {
	tests := map[int]errors.Reason{
		0:   errors.ReasonUnreachable,
		401: errors.ReasonUnauthorized,
		403: errors.ReasonUnauthorized,
		429: errors.ReasonRateLimited,
		500: errors.ReasonUnreachable,
		503: errors.ReasonUnreachable,
		400: errors.ReasonInvalidResponse,
		404: errors.ReasonInvalidResponse,
	}
	for code, want := range tests {
		if got := reasonForStatus(code); got != want {
			t.Errorf("reasonForStatus(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestReasonForError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{Offset: 1}
	if got := reasonForError(fmt.Errorf("decode: %w", syntaxErr)); got != errors.ReasonInvalidResponse {
		t.Errorf("syntax error reason = %s", got)
	}
	if got := reasonForError(context.DeadlineExceeded); got != errors.ReasonUnreachable {
		t.Errorf("deadline reason = %s", got)
	}
}

func TestClassifyPubSubError(t *testing.T) {
	err := classifyPubSubError(status.Error(codes.Unavailable, "try again"))
	if err.Code != errors.ErrPubSubService || err.Details["grpc_code"] != "Unavailable" {
		t.Errorf("unavailable = %+v", err)
	}

	err = classifyPubSubError(status.Error(codes.DeadlineExceeded, "slow"))
	if err.Code != errors.ErrTimeout {
		t.Errorf("deadline code = %s", err.Code)
	}
}
