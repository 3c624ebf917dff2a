package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/windfall/ielts_service/internal/errors"
)

// Chat roles understood by every text-generation client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message of a completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
}

// reasonForStatus maps a provider HTTP status to an error reason.
// A zero status means the request never got an answer.
func reasonForStatus(status int) errors.Reason {
	switch {
	case status == 0:
		return errors.ReasonUnreachable
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.ReasonUnauthorized
	case status == http.StatusTooManyRequests:
		return errors.ReasonRateLimited
	case status >= 500:
		return errors.ReasonUnreachable
	default:
		return errors.ReasonInvalidResponse
	}
}

// reasonForError classifies errors that carry no HTTP status.
func reasonForError(err error) errors.Reason {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntaxErr), stderrors.As(err, &typeErr):
		return errors.ReasonInvalidResponse
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.ReasonUnreachable
	default:
		return errors.ReasonUnreachable
	}
}
