package retry

import "github.com/rohmanhakim/linkharvest/pkg/failure"

// Result carries the outcome of a retried operation: the last value produced,
// the terminal error (nil on success), and how many attempts were made.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

// NewSuccessResult builds a Result for a call that succeeded on the given attempt.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{
		value:    value,
		attempts: attempts,
	}
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

func (r Result[T]) Attempts() int {
	return r.attempts
}

// IsSuccess reports whether the operation ended without an error.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// IsFailure reports whether the operation ended with an error.
func (r Result[T]) IsFailure() bool {
	return r.err != nil
}
