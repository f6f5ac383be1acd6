package models

import "errors"

// Error kinds shared by the denoising packages. Errors returned by this
// module wrap one of these so callers can test them with errors.Is.
var (
	// ErrInvalidParameter reports an out-of-range size, count or name
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientSamples reports fewer samples than dimensions in a PCA call
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrPatchTooLarge reports a patch side exceeding the grid extent
	ErrPatchTooLarge = errors.New("patch too large")

	// ErrEmptyPatchList reports a reconstruction from zero patches
	ErrEmptyPatchList = errors.New("empty patch list")

	// ErrInvalidMatrixShape reports mismatched or empty matrices
	ErrInvalidMatrixShape = errors.New("invalid matrix shape")

	// ErrUnsupportedPolicy reports an unknown threshold or shrink kind
	ErrUnsupportedPolicy = errors.New("unsupported policy")
)
