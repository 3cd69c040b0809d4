package canon

import "errors"

// Sentinel errors for the two failure families described in the error
// handling policy: configuration errors surface at load time, validation
// errors surface at the point of computation. All of them are wrapped with
// the offending values so callers can print them verbatim.
var (
	// Configuration errors.
	ErrConfigNotFound = errors.New("canon config not found")
	ErrConfigSchema   = errors.New("canon config schema error")

	// Validation errors.
	ErrMissingSeason      = errors.New("missing season start")
	ErrBadMatchday        = errors.New("matchday must be >= 1")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrOffsetOutOfBounds  = errors.New("offset out of bounds")
	ErrFutureBlocked      = errors.New("future content blocked")
)
