package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrAlreadyClaimed reports that another run already claimed a (shipment, status) step.
	ErrAlreadyClaimed = errors.New("step already claimed")

	// ErrInvalidPolicy marks a malformed automation policy.
	ErrInvalidPolicy = errors.New("invalid automation policy")
)
