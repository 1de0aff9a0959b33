// Package sentinel holds the infrastructure errors stores return.
//
// Services translate these into domain-errors codes at their boundary:
// ErrNotFound when a certificate id has never been imported, ErrInvalidState
// when a record cannot be stored as given, and ErrUnavailable when a backend
// such as the document cache is switched off or unreachable.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
