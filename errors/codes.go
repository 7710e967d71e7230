package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Caller errors
const (
	// ErrCodeInvalidArgument indicates a nil or otherwise unusable argument.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Structural errors raised while routing a request through the pipeline
const (
	// ErrCodeInvalidState indicates a position escaped its valid range or a
	// request reached a collaborator that cannot accept it.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeUnknownRequest indicates a state machine received a request
	// kind it has no transition for.
	ErrCodeUnknownRequest ErrorCode = "UNKNOWN_REQUEST"
)

// Collaborator errors (retryable)
const (
	// ErrCodeSourceUnavailable indicates the terminal source refused work.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	// ErrCodeRateLimited indicates a limiter rejected the call.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeTimeout indicates an operation ran out of time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeStorage indicates a cache tier failed to read or write.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeSourceUnavailable: true,
	ErrCodeRateLimited:       true,
	ErrCodeTimeout:           true,
	ErrCodeStorage:           true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
