// Package errors provides the structured error type shared by the pipeline
// engine, its stages and its sources.
//
// Every error carries a machine-readable code so callers can branch on the
// kind of failure (invalid argument, structural state error, unavailable
// source) without matching on message text.
//
//	if errors.IsCode(err, errors.ErrCodeInvalidState) {
//	    // a custom state machine moved a request out of bounds
//	}
package errors
