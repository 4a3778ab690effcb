package utils

import (
	"github.com/pkg/errors"
)

// NewConfigValidationError returns an error specific to a failure to validate a config.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewOutOfRangeError is used when a config field falls outside its accepted interval.
func NewOutOfRangeError(path, field string, value, lo, hi float64) error {
	return NewConfigValidationError(path, errors.Errorf("%q must be in [%g, %g], got %g", field, lo, hi, value))
}
