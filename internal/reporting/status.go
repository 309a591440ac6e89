package reporting

import (
	"errors"
	"fmt"
)

// StatusCode is the externally visible result of an API call.
type StatusCode int

const (
	StatusSuccess            StatusCode = 0
	StatusInternalError      StatusCode = 1
	StatusInvalidArgument    StatusCode = 2
	StatusRateLimitReached   StatusCode = 3
	StatusUnknownError       StatusCode = 4
	StatusIOError            StatusCode = 5
	StatusUserConsentRevoked StatusCode = 7
	StatusCallerNotAllowed   StatusCode = 10
	StatusBackgroundCaller   StatusCode = 11
	StatusUnauthorized       StatusCode = 12
)

func (c StatusCode) String() string {
	switch c {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusRateLimitReached:
		return "RATE_LIMIT_REACHED"
	case StatusIOError:
		return "IO_ERROR"
	case StatusUserConsentRevoked:
		return "USER_CONSENT_REVOKED"
	case StatusCallerNotAllowed:
		return "CALLER_NOT_ALLOWED"
	case StatusBackgroundCaller:
		return "BACKGROUND_CALLER"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Messages shared with the request filter.
const (
	RateLimitReachedMessage = "API rate limit exceeded."
	BackgroundCallerMessage = "Background thread is not allowed to call this service."
	CallerNotAllowedMessage = "Caller is not allowed to call this API."
	UnauthorizedMessage     = "Caller is not authorized to call this API."
	ConsentRevokedMessage   = "User consent revoked."
)

var (
	ErrAdSelectionNotFound   = errors.New("Unable to find ad selection with given ID")
	ErrCallerPackageMismatch = errors.New("Caller package name does not match name used in ad selection")
	ErrRecordNotFound        = errors.New("record not found")
	ErrFetchFailed           = errors.New("failed to fetch reporting logic")
	ErrScriptFailed          = errors.New("reporting script failed")
	ErrTimedOut              = errors.New("Timed out")
	ErrBeaconsDisabled       = errors.New("registerAdBeacon is not enabled")
	ErrDevOptionsDisabled    = errors.New("developer options are not enabled for the caller")
	ErrAdTechNotEnrolled     = errors.New("ad tech is not enrolled")
)

// StatusError is the terminal failure reported to the caller.
type StatusError struct {
	Code    StatusCode
	Message string
	Err     error
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) Unwrap() error { return e.Err }

// FilterError is returned by a Filter. The filter has already logged the
// rejection, so the pipeline does not log it again.
type FilterError struct {
	Code StatusCode
	Err  error
}

func (e *FilterError) Error() string { return e.Err.Error() }

func (e *FilterError) Unwrap() error { return e.Err }

// ValidationError lists every problem found in a request argument.
type ValidationError struct {
	Subject    string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Subject, e.Violations)
}

// StatusOf maps an error onto the status taxonomy.
func StatusOf(err error) StatusCode {
	if err == nil {
		return StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var fe *FilterError
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ve *ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, ErrAdSelectionNotFound),
		errors.Is(err, ErrCallerPackageMismatch):
		return StatusInvalidArgument
	case errors.Is(err, ErrDevOptionsDisabled):
		return StatusUnauthorized
	}
	return StatusInternalError
}

func toStatusError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return &StatusError{Code: StatusOf(err), Message: err.Error(), Err: err}
}
