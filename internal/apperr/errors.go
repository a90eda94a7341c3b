// Package apperr holds the error kinds shared across Auralis layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks input rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrNoFields is returned for an update that carries no fields.
	ErrNoFields = fmt.Errorf("%w: no fields to update", ErrValidation)
	// ErrNoOwner is returned when an operation needs a signed-in owner and none is known.
	ErrNoOwner = fmt.Errorf("%w: no owner", ErrValidation)
	// ErrBusy is returned when an operation of the same kind is already in flight for a note.
	ErrBusy = errors.New("operation already in flight")
)

// Validation wraps msg as an ErrValidation.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// LoadError reports that the repository could not list an owner's notes.
type LoadError struct {
	OwnerID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load notes for %s: %v", e.OwnerID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RemoteError reports a failure returned by a collaborator (repository or AI service).
type RemoteError struct {
	Service string
	Op      string
	Status  int // HTTP status when the collaborator is reached over HTTP, else 0
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteError unless it already is one or is nil.
func Remote(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Service: service, Op: op, Err: err}
}
