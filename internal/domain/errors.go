package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")

	// Pipeline taxonomy. UnsupportedFormat and ExtractionFailure are
	// recoverable per file; the other two terminate a submission.
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrExtractionFailure     = errors.New("extraction failure")
	ErrInvalidResponseFormat = errors.New("invalid response format")
	ErrPersistenceFailure    = errors.New("persistence failure")
)

// InvalidResponseError carries the unparsed model output of a Judge call that
// did not satisfy the verdict contract.
type InvalidResponseError struct {
	Raw string
	Err error
}

// NewInvalidResponse builds an InvalidResponseError.
func NewInvalidResponse(raw string, err error) *InvalidResponseError {
	return &InvalidResponseError{Raw: raw, Err: err}
}

func (e *InvalidResponseError) Error() string {
	if e.Err == nil {
		return ErrInvalidResponseFormat.Error()
	}
	return fmt.Sprintf("%s: %v", ErrInvalidResponseFormat, e.Err)
}

// Unwrap exposes both the sentinel and the parse cause.
func (e *InvalidResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidResponseFormat}
	}
	return []error{ErrInvalidResponseFormat, e.Err}
}

// RawResponse returns the raw model text attached to err, if any.
func RawResponse(err error) (string, bool) {
	var ire *InvalidResponseError
	if errors.As(err, &ire) {
		return ire.Raw, true
	}
	return "", false
}
