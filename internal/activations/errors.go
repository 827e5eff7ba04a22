package activations

import "fmt"

// InvariantError marks a condition the original implementation would have
// handled by panicking on a poisoned mutex (spec.md §9 "exceptions /
// panics as control flow"). Rather than recovering a poisoned lock, a
// caller that detects one of these conditions should log it and exit
// nonzero: there is no locally-correct way to keep going.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Msg)
}

// NewInvariantError constructs an InvariantError with a formatted message.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
