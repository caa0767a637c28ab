package detectors

import (
	"github.com/pkg/errors"
)

var (
	// ErrDimensionMismatch is returned when a sample length differs from the
	// feature count the model was initialized with.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidConfiguration is returned by constructors given unusable
	// parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// DimensionMismatch wraps ErrDimensionMismatch with the expected and actual
// sample lengths.
func DimensionMismatch(want, got int) error {
	return errors.Wrapf(ErrDimensionMismatch, "expected %d features, got %d", want, got)
}

// InvalidConfiguration wraps ErrInvalidConfiguration with a description.
func InvalidConfiguration(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfiguration, format, args...)
}
