package domain

import "errors"

var (
	// ErrAccessDenied marks an attempt to read a category the user has not
	// granted. It is never surfaced to callers; denied categories are
	// silently excluded.
	ErrAccessDenied = errors.New("access denied")

	// ErrDataUnavailable is returned when every targeted authorized category
	// failed to load.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrUnsupportedIntent marks a query outside the financial-insight scope.
	ErrUnsupportedIntent = errors.New("unsupported intent")

	// ErrModelTimeout is returned when the language model does not answer in time.
	ErrModelTimeout = errors.New("model timeout")

	// ErrModelError is returned when the language model fails or returns
	// output that cannot be used.
	ErrModelError = errors.New("model error")

	// ErrInternalInvariantViolation means unauthorized data reached the
	// reasoning step or the response. Always fatal.
	ErrInternalInvariantViolation = errors.New("internal invariant violation")

	// ErrRepositoryUnavailable is returned by record repositories that
	// cannot serve a category.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrUnknownCategory is returned when parsing an unrecognized category name.
	ErrUnknownCategory = errors.New("unknown category")
)

// ReasonFor returns the result reason code for a degraded-outcome error, or
// "" when err does not map to one.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedIntent):
		return ReasonUnsupported
	case errors.Is(err, ErrDataUnavailable):
		return ReasonDataUnavailable
	case errors.Is(err, ErrModelTimeout):
		return ReasonModelTimeout
	case errors.Is(err, ErrModelError):
		return ReasonModelError
	}
	return ""
}
