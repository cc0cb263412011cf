package engine

import "fmt"

// ConflictError means the operation would violate an at-most-one-open
// invariant, e.g. a second clock-in or a second open session.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

// InvalidStateError means the operation is not legal in the entity's current
// state, e.g. pausing a closed session or ending one with an open pause.
type InvalidStateError struct {
	Msg string
}

func (e InvalidStateError) Error() string { return e.Msg }

// InvalidInputError covers bad arguments and timestamps out of causal order.
type InvalidInputError struct {
	Msg string
}

func (e InvalidInputError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...any) error {
	return InvalidStateError{Msg: fmt.Sprintf(format, args...)}
}

func invalidInputf(format string, args ...any) error {
	return InvalidInputError{Msg: fmt.Sprintf(format, args...)}
}
