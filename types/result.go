package types

import "errors"

// Result is a success/failure envelope for fetch steps whose failure is
// recoverable at the item level.
type Result[T any] struct {
	Success bool
	Payload T
	Err     error
}

// Ok wraps a successful payload.
func Ok[T any](payload T) Result[T] {
	return Result[T]{Success: true, Payload: payload}
}

// Fail wraps a failure. A nil err is replaced with a generic one so callers
// can always log Err.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result[T]{Err: err}
}

// Unwrap returns the payload and error in the usual Go shape.
func (r Result[T]) Unwrap() (T, error) {
	if !r.Success {
		var zero T
		return zero, r.Err
	}
	return r.Payload, nil
}
