package server

import "errors"

var (
	// ErrInvalidArgument is returned for a missing or empty argument. The
	// controller is left unchanged.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalLifecycle is returned for an operation that is not valid in
	// the current state, such as starting twice or starting before the first
	// Configure. The controller is left unchanged.
	ErrIllegalLifecycle = errors.New("illegal lifecycle operation")
)
