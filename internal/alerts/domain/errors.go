package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidType indicates an unknown alert type.
	ErrInvalidType = errors.New("alert: invalid type")
	// ErrInvalidAlert indicates an alert that fails validation.
	ErrInvalidAlert = errors.New("alert: invalid")
)
