package statmodel

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by NumericalError and ConfigurationError, for
// use with errors.Is.
var (
	ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
	ErrRankDeficient       = errors.New("design matrix is not of full column rank")
	ErrNullSpace           = errors.New("penalty null space has unexpected dimension")
	ErrDimension           = errors.New("dimension mismatch")
	ErrGroupCode           = errors.New("group code is not finite")
)

// NumericalError reports a failed factorization or solve.  It occurs
// when parameter values lead to a numerically invalid matrix, e.g. a
// covariance matrix that is not positive definite.
type NumericalError struct {

	// The operation that failed
	Op string

	// The matrix that could not be factorized or solved
	Matrix string

	// Additional context, e.g. the parameter values
	Detail string

	// The underlying error, usually a sentinel
	Err error
}

func (e *NumericalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Matrix)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a violated precondition on the inputs to a
// model, detected before any fitting takes place.
type ConfigurationError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Op + ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsNumerical returns true if err is, or wraps, a NumericalError.
func IsNumerical(err error) bool {
	var ne *NumericalError
	return errors.As(err, &ne)
}
