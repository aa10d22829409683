package models

import "errors"

// Sentinel errors shared across services. The HTTP layer maps them to
// response codes; everything else wraps them with fmt.Errorf("...: %w", err).
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUpstream          = errors.New("upstream gateway error")
	ErrInsufficientStock = errors.New("insufficient stock")
)
