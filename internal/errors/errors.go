package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents application error codes.
type ErrorCode string

const (
	// General errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrTimeout      ErrorCode = "TIMEOUT"
	ErrDatabase     ErrorCode = "DATABASE_ERROR"

	// Assessment errors
	ErrCredential ErrorCode = "CREDENTIAL_ERROR"
	ErrProvider   ErrorCode = "PROVIDER_ERROR"
	ErrDevice     ErrorCode = "DEVICE_ERROR"
	ErrInput      ErrorCode = "INPUT_ERROR"

	// Service-specific errors
	ErrStorageService ErrorCode = "STORAGE_SERVICE_ERROR"
	ErrPubSubService  ErrorCode = "PUBSUB_SERVICE_ERROR"
)

// Reason refines an ErrorCode.
type Reason string

const (
	ReasonNotFound        Reason = "NOT_FOUND"
	ReasonMissingKey      Reason = "MISSING_KEY"
	ReasonUnreachable     Reason = "UNREACHABLE"
	ReasonRateLimited     Reason = "RATE_LIMITED"
	ReasonUnauthorized    Reason = "UNAUTHORIZED"
	ReasonInvalidResponse Reason = "INVALID_RESPONSE"
	ReasonOpenFailed      Reason = "OPEN_FAILED"
	ReasonInvalidState    Reason = "INVALID_STATE"
	ReasonEmptyAudio      Reason = "EMPTY_AUDIO"
	ReasonEmptyResponse   Reason = "EMPTY_RESPONSE"
	ReasonMissingPrompt   Reason = "MISSING_PROMPT"
)

// Sentinels for errors.Is. They match any AppError with the same code and reason.
var (
	ErrCredentialNotFound      = &AppError{Code: ErrCredential, Reason: ReasonNotFound}
	ErrMissingKey              = &AppError{Code: ErrCredential, Reason: ReasonMissingKey}
	ErrProviderUnreachable     = &AppError{Code: ErrProvider, Reason: ReasonUnreachable}
	ErrProviderRateLimited     = &AppError{Code: ErrProvider, Reason: ReasonRateLimited}
	ErrProviderUnauthorized    = &AppError{Code: ErrProvider, Reason: ReasonUnauthorized}
	ErrProviderInvalidResponse = &AppError{Code: ErrProvider, Reason: ReasonInvalidResponse}
	ErrDeviceOpen              = &AppError{Code: ErrDevice, Reason: ReasonOpenFailed}
	ErrInvalidState            = &AppError{Code: ErrDevice, Reason: ReasonInvalidState}
	ErrEmptyAudio              = &AppError{Code: ErrInput, Reason: ReasonEmptyAudio}
	ErrEmptyResponse           = &AppError{Code: ErrInput, Reason: ReasonEmptyResponse}
	ErrMissingPrompt           = &AppError{Code: ErrInput, Reason: ReasonMissingPrompt}
)

// AppError represents an application error with code and metadata.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Reason  Reason                 `json:"reason,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	code := string(e.Code)
	if e.Reason != "" {
		code = fmt.Sprintf("%s(%s)", e.Code, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code and, when the
// target sets one, the same reason.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status code for the error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrValidation, ErrInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrCredential:
		if e.Reason == ReasonNotFound {
			return http.StatusNotFound
		}
		return http.StatusPreconditionFailed
	case ErrProvider:
		if e.Reason == ReasonRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case ErrDevice:
		if e.Reason == ReasonInvalidState {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus returns the gRPC status for the error.
func (e *AppError) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Code {
	case ErrValidation, ErrInput:
		code = codes.InvalidArgument
	case ErrUnauthorized:
		code = codes.Unauthenticated
	case ErrForbidden:
		code = codes.PermissionDenied
	case ErrNotFound:
		code = codes.NotFound
	case ErrConflict:
		code = codes.AlreadyExists
	case ErrRateLimit:
		code = codes.ResourceExhausted
	case ErrTimeout:
		code = codes.DeadlineExceeded
	case ErrCredential:
		code = codes.FailedPrecondition
	case ErrProvider:
		switch e.Reason {
		case ReasonRateLimited:
			code = codes.ResourceExhausted
		case ReasonUnauthorized:
			code = codes.PermissionDenied
		default:
			code = codes.Unavailable
		}
	case ErrDevice:
		if e.Reason == ReasonInvalidState {
			code = codes.FailedPrecondition
		} else {
			code = codes.Internal
		}
	default:
		code = codes.Internal
	}
	return status.New(code, e.Message)
}

// Common error constructors
func Internal(message string) *AppError {
	return New(ErrInternal, message)
}

func InternalWrap(message string, err error) *AppError {
	return Wrap(ErrInternal, message, err)
}

func Validation(message string) *AppError {
	return New(ErrValidation, message)
}

func NotFound(resource string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *AppError {
	return New(ErrUnauthorized, message)
}

func Timeout(message string) *AppError {
	return New(ErrTimeout, message)
}

// Credential reports a missing credential row or a missing provider key.
func Credential(reason Reason, message string) *AppError {
	return &AppError{Code: ErrCredential, Reason: reason, Message: message}
}

// Provider reports a transport, auth or envelope failure talking to a provider.
// The provider name and the provider's own message are kept in Details so
// callers can tell the user which key to fix.
func Provider(provider string, reason Reason, err error) *AppError {
	details := map[string]interface{}{"provider": provider}
	if err != nil {
		details["cause"] = err.Error()
	}
	return &AppError{
		Code:    ErrProvider,
		Reason:  reason,
		Message: fmt.Sprintf("%s request failed", provider),
		Details: details,
		Err:     err,
	}
}

// Device reports a capture device failure.
func Device(reason Reason, message string, err error) *AppError {
	return &AppError{Code: ErrDevice, Reason: reason, Message: message, Err: err}
}

// Input reports a caller-correctable input problem.
func Input(reason Reason, message string) *AppError {
	return &AppError{Code: ErrInput, Reason: reason, Message: message}
}
