package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the match engine matches exactly one of
// these with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence error")
)

var (
	// ErrMatchNotFound is returned when a room code or match id resolves to nothing.
	ErrMatchNotFound = NotFound("match not found")
	// ErrMatchQuestionNotFound indicates a submitted match-question id is invalid.
	ErrMatchQuestionNotFound = NotFound("match question not found")
	// ErrQuestionNotFound indicates a bank entry referenced by a match is gone.
	ErrQuestionNotFound = NotFound("question not found in bank")
	// ErrMatchNotWaiting is returned when joining a match that is already paired.
	ErrMatchNotWaiting = Conflict("match is not accepting players")
	// ErrMatchNotReady is returned when finalizing a match that has no opponent yet.
	ErrMatchNotReady = Conflict("match is not ready")
	// ErrAlreadyFinalized guards against a second finalize of the same match.
	ErrAlreadyFinalized = Conflict("match already finalized")
	// ErrMatchCompleted rejects answers for a match whose outcome is locked in.
	ErrMatchCompleted = Conflict("match is already completed")
	// ErrRoomCodeTaken signals a room-code collision with an active match.
	ErrRoomCodeTaken = Conflict("room code already in use")
)

// Error carries a stable kind plus a human-readable message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Persistence wraps a storage failure. Errors that already carry a kind are
// returned untouched so repositories may surface domain errors directly.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}
	return &Error{Kind: ErrPersistence, Message: op + " failed", Err: err}
}

// KindOf returns the machine-readable kind of err.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "persistence"
	}
}

// Message returns the client-facing message for err. Persistence failures do
// not leak driver details.
func Message(err error) string {
	var derr *Error
	if !errors.As(err, &derr) {
		return "internal error"
	}
	return derr.Message
}
