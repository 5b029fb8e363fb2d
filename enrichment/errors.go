package enrichment

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCandidateSource  ErrorCode = "CANDIDATE_SOURCE"
	ErrorStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorUpload           ErrorCode = "UPLOAD"
	ErrorSubmit           ErrorCode = "SUBMIT"
	ErrorArtifact         ErrorCode = "ARTIFACT"
	ErrorIntegrity        ErrorCode = "INTEGRITY"
	ErrorVectorWrite      ErrorCode = "VECTOR_WRITE"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("enrichment: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("enrichment: %s (%s): %v", e.Code, e.Reason, e.Err)
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

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
