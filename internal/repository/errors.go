// Package repository holds the MySQL-backed booking ledger and the
// sentinel errors its callers match on.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing state, such
// as a seat that another booking already holds. Handlers should translate
// this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
