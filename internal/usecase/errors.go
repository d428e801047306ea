package usecase

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	// ErrorUsageViolation marks input refused at the boundary. No request is
	// issued and the session is left untouched.
	ErrorUsageViolation ErrorCode = "USAGE_VIOLATION"
	// ErrorTransportFailure marks a failed round-trip. It always lands the
	// session in the errored phase and is recoverable by retry.
	ErrorTransportFailure ErrorCode = "TRANSPORT_FAILURE"
)

// GenericErrorMessage is shown when the service gave no usable detail.
const GenericErrorMessage = "An error occurred. Please try again."

type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func usageError(reason, message string) *Error {
	e := newError(ErrorUsageViolation, reason, nil)
	e.Message = message
	return e
}

// IsUsageViolation reports whether err is a refused submission.
func IsUsageViolation(err error) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Code == ErrorUsageViolation
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type serviceDetailer interface {
	ServiceDetail() string
}

// transportError classifies a failed round-trip and picks the message shown to
// the user: the service's detail when present, the generic fallback otherwise.
func transportError(err error) *Error {
	reason := "request_failed"
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		reason = fmt.Sprintf("http_%d", statusErr.HTTPStatusCode())
	}
	e := newError(ErrorTransportFailure, reason, err)
	e.Message = GenericErrorMessage
	var detailer serviceDetailer
	if errors.As(err, &detailer) {
		if d := strings.TrimSpace(detailer.ServiceDetail()); d != "" {
			e.Message = d
		}
	}
	return e
}
