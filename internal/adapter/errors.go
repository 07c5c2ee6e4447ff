package adapter

import "github.com/pkg/errors"

// Common errors.
var (
	// ErrShapeMismatch reports input data inconsistent with the declared inputs.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrLengthMismatch reports a sequence start list of the wrong length.
	ErrLengthMismatch = errors.New("length mismatch")
)
