package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBroadcastNotFound is a sentinel error
type ErrBroadcastNotFound struct {
	BroadcastID int
}

func (e *ErrBroadcastNotFound) Error() string {
	return fmt.Sprintf("broadcast with ID %d not found", e.BroadcastID)
}

// Helper constructor
func NewBroadcastNotFound(id int) error {
	return &ErrBroadcastNotFound{BroadcastID: id}
}

// ErrValidation covers malformed requests and invalid status transitions.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Reason: fmt.Sprintf(format, args...)}
}

// NewInvalidTransition names the current and requested status, so the
// caller can see exactly which state machine edge was rejected.
func NewInvalidTransition(from, to string) error {
	return &ErrValidation{Reason: fmt.Sprintf("invalid status transition from %q to %q", from, to)}
}

// ErrPermission covers missing operator roles and missing approval.
type ErrPermission struct {
	Reason string
}

func (e *ErrPermission) Error() string {
	return e.Reason
}

func NewPermission(format string, args ...any) error {
	return &ErrPermission{Reason: fmt.Sprintf(format, args...)}
}

// ErrConflict covers updates or deletes on a broadcast whose status
// forbids them.
type ErrConflict struct {
	Reason string
}

func (e *ErrConflict) Error() string {
	return e.Reason
}

func NewConflict(format string, args ...any) error {
	return &ErrConflict{Reason: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps the error taxonomy onto admin API status codes.
// Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	var nf *ErrBroadcastNotFound
	var val *ErrValidation
	var perm *ErrPermission
	var conflict *ErrConflict
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &val):
		return http.StatusBadRequest
	case errors.As(err, &perm):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound reports whether err is a broadcast-not-found error.
func IsNotFound(err error) bool {
	var nf *ErrBroadcastNotFound
	return errors.As(err, &nf)
}
