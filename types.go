package storesearch

import "github.com/cockroachdb/errors"

// ErrorCode represents specific error codes for catalog search operations.
type ErrorCode int

const (
	// ErrCodeEmptyQuery is returned when the search text is empty after trimming.
	ErrCodeEmptyQuery ErrorCode = iota + 1000

	// ErrCodeInvalidCategory is returned when a category filter is not recognized.
	ErrCodeInvalidCategory

	// ErrCodeMalformedPayload is returned when a response body is not a catalog result list.
	ErrCodeMalformedPayload

	// ErrCodeTransport is returned when the remote call itself fails.
	ErrCodeTransport

	// ErrCodeUnexpectedStatus is returned when the catalog answers with a non-success status.
	ErrCodeUnexpectedStatus

	// ErrCodeCanceled is returned when a search is canceled or superseded.
	ErrCodeCanceled

	// ErrCodeBackendUnavailable is returned when the catalog backend cannot be reached or configured.
	ErrCodeBackendUnavailable
)

// String returns the human-readable string representation of the error code.
// This implements the fmt.Stringer interface.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeEmptyQuery:
		return "empty query"
	case ErrCodeInvalidCategory:
		return "invalid category"
	case ErrCodeMalformedPayload:
		return "malformed payload"
	case ErrCodeTransport:
		return "transport failure"
	case ErrCodeUnexpectedStatus:
		return "unexpected status"
	case ErrCodeCanceled:
		return "operation canceled"
	case ErrCodeBackendUnavailable:
		return "backend unavailable"
	default:
		return "unknown error"
	}
}

// newErrorWithCode creates a new error with a code and message.
func newErrorWithCode(code ErrorCode, msg string) error {
	err := errors.New(msg)
	return errors.WithSecondaryError(err, errors.Newf("code: %d", int(code)))
}

// Common errors that can be returned by search operations.
var (
	// ErrEmptyQuery is returned when an empty query is provided.
	ErrEmptyQuery = newErrorWithCode(ErrCodeEmptyQuery, "storesearch: empty query")

	// ErrInvalidCategory is returned when an unknown category filter is provided.
	ErrInvalidCategory = newErrorWithCode(ErrCodeInvalidCategory, "storesearch: invalid category")

	// ErrMalformedPayload is returned by ParseStrict when the payload is not a result list.
	// Sessions absorb it and report an empty result set.
	ErrMalformedPayload = newErrorWithCode(ErrCodeMalformedPayload, "storesearch: malformed payload")

	// ErrTransport is returned when the fetch fails before a response is received.
	ErrTransport = newErrorWithCode(ErrCodeTransport, "storesearch: transport failure")

	// ErrUnexpectedStatus is returned when the catalog responds with a non-2xx status.
	ErrUnexpectedStatus = newErrorWithCode(ErrCodeUnexpectedStatus, "storesearch: unexpected status")

	// ErrCanceled is returned when a search operation is canceled.
	ErrCanceled = newErrorWithCode(ErrCodeCanceled, "storesearch: operation canceled")

	// ErrBackendUnavailable is returned when the search backend is unavailable.
	ErrBackendUnavailable = newErrorWithCode(ErrCodeBackendUnavailable, "storesearch: backend unavailable")
)

var codedErrors = []struct {
	code ErrorCode
	err  error
}{
	{ErrCodeEmptyQuery, ErrEmptyQuery},
	{ErrCodeInvalidCategory, ErrInvalidCategory},
	{ErrCodeMalformedPayload, ErrMalformedPayload},
	{ErrCodeTransport, ErrTransport},
	{ErrCodeUnexpectedStatus, ErrUnexpectedStatus},
	{ErrCodeCanceled, ErrCanceled},
	{ErrCodeBackendUnavailable, ErrBackendUnavailable},
}

// CodeOf returns the code of the first package error found in err's chain,
// or zero if err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return 0
	}
	for _, c := range codedErrors {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return 0
}

// IsRetryable reports whether a failed search may succeed if issued again.
// Transport and status failures are retryable; input errors are not.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeTransport, ErrCodeUnexpectedStatus, ErrCodeBackendUnavailable:
		return true
	default:
		return false
	}
}
