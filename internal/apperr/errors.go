// Package apperr defines the error taxonomy shared across Othala packages.
//
// Callers classify failures with errors.Is against these sentinels rather
// than matching on message text. ErrNotFound is an expected outcome for
// lookups, not a failure; ErrValidation marks caller bugs and is never
// retried; ErrStorage marks cache I/O failures that the caller may retry at
// the operation level.
package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrStorage     = errors.New("storage failure")
	ErrConflict    = errors.New("conflict")
	ErrRemoteFetch = errors.New("remote fetch failed")
	ErrDownload    = errors.New("download failed")
	ErrUnsupported = errors.New("not supported")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is (or wraps) ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
