// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrBusy         = errors.New("already running")
	ErrUnavailable  = errors.New("not configured")
)
