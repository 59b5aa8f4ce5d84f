package pitches

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the share id or pitch id does not resolve to a pitch.
	ErrNotFound = errors.New("pitches: not found")
	// ErrInvalidArgument indicates a missing or malformed caller supplied field.
	ErrInvalidArgument = errors.New("pitches: invalid argument")
	// ErrStorage indicates the persistence layer failed.
	ErrStorage = errors.New("pitches: storage failure")
	// ErrVersionConflict indicates the pitch changed between load and save.
	ErrVersionConflict = errors.New("pitches: version conflict")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// reasonFor maps a cause onto the reason segment of a service error code.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	default:
		return "storage_failed"
	}
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
