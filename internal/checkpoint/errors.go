package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every format problem matches ErrCorrupt with errors.Is.
var (
	ErrIO      = errors.New("checkpoint I/O error")
	ErrCorrupt = errors.New("corrupt checkpoint")

	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic bytes", ErrCorrupt)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrCorrupt)
	ErrTruncated          = fmt.Errorf("%w: truncated file", ErrCorrupt)
	ErrChecksumMismatch   = fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	ErrHeaderTooLarge     = fmt.Errorf("%w: header exceeds maximum size", ErrCorrupt)
)

// ValidationError describes an inconsistent tensor table or state map.
type ValidationError struct {
	Type    string // e.g. "offset_overlap", "out_of_bounds", "missing_tensor"
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap makes every ValidationError match ErrCorrupt.
func (e *ValidationError) Unwrap() error { return ErrCorrupt }

func ioErrorf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, fmt.Sprintf(format, args...), err)
}
