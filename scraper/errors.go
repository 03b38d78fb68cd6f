package scraper

import (
	"errors"
	"fmt"
)

// The fetch boundary converts every transport problem into one of these
// typed errors. Extraction layers never see a raised transport error;
// they receive no document and return empty results, while callers that
// want to show a distinct failure message can inspect the type.

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string { return fmt.Errorf("timeout: %w", e.Err).Error() }
func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string { return fmt.Errorf("connection: %w", e.Err).Error() }
func (e ErrConnection) Unwrap() error { return e.Err }

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string { return fmt.Errorf("forbidden: %w", e.Err).Error() }
func (e ErrForbidden) Unwrap() error { return e.Err }

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string { return fmt.Errorf("not_found: %w", e.Err).Error() }
func (e ErrNotFound) Unwrap() error { return e.Err }

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string { return fmt.Errorf("rate_limited: %w", e.Err).Error() }
func (e ErrRateLimited) Unwrap() error { return e.Err }

// ErrBadStatus covers any other non-2xx response.
type ErrBadStatus struct {
	Status int
	Err    error
}

func (e ErrBadStatus) Error() string {
	return fmt.Errorf("bad_status %d: %w", e.Status, e.Err).Error()
}
func (e ErrBadStatus) Unwrap() error { return e.Err }

// ErrInvalidInput marks programmer-error-class inputs (empty keyword,
// non-positive limit), rejected before any network call. Distinct from a
// search that ran and found nothing, which is a success with zero rows.
var ErrInvalidInput = errors.New("scraper: invalid input")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var badStatus ErrBadStatus
	if errors.As(err, &badStatus) {
		return "bad_status"
	}
	return "other"
}
