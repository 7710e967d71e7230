package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	apperrors "github.com/kbukum/tiered/errors"
)

// Error is returned by Retrieve when any branch of the call failed. It
// carries the results recorded before and despite the failures.
type Error[K comparable, V any] struct {
	// Results holds every result set recorded during the call, merged.
	Results map[K]V
	// Errors lists each leaf failure. Aggregates produced while fanning out
	// are flattened, so no entry is itself a join of errors.
	Errors []error
}

func (e *Error[K, V]) Error() string {
	switch len(e.Errors) {
	case 0:
		return "pipeline: call failed"
	case 1:
		return "pipeline: " + e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline: %d errors occurred:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n\t* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the leaf errors so errors.Is and errors.As reach them.
func (e *Error[K, V]) Unwrap() []error { return e.Errors }

// IsStructural reports whether err is, or contains, a routing failure:
// a position outside the chain, a non-query request at the source, or a
// request kind the active state machine does not know.
func IsStructural(err error) bool {
	return anyLeaf(err, func(leaf error) bool {
		return apperrors.IsCode(leaf, apperrors.ErrCodeInvalidState) ||
			apperrors.IsCode(leaf, apperrors.ErrCodeUnknownRequest)
	})
}

// IsInvalidArgument reports whether err is an invalid-argument failure.
func IsInvalidArgument(err error) bool {
	return apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument)
}

func anyLeaf(err error, match func(error) bool) bool {
	for _, leaf := range flatten(err) {
		if match(leaf) {
			return true
		}
	}
	return false
}

// flatten expands joined errors into their leaves.
func flatten(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		out = append(out, e)
	}
	for _, e := range multierr.Errors(err) {
		walk(e)
	}
	return out
}

// ownCancellation reports whether err is the call's own cancellation
// surfacing, as opposed to a cancellation coming from some other context.
func ownCancellation(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, ctx.Err()) || errors.Is(err, context.Cause(ctx))
}

// codeOf labels err for metrics.
func codeOf(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return string(appErr.Code)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}
	return "UNKNOWN"
}
