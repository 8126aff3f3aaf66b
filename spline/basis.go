// Package spline builds a cubic regression spline basis with a
// roughness penalty, fits penalized regression splines, and
// reparameterizes the penalized spline as a linear mixed model, in which
// the unpenalized part of the basis enters as fixed effects and the
// penalized part as random effects.
//
// Covariate values and knots are assumed to lie in [0, 1].  Use
// Rescale to map data onto this interval.
package spline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// RK evaluates the reproducing kernel for the cubic spline on [0, 1]
// at x and z.
func RK(x, z float64) float64 {

	a := ((z-0.5)*(z-0.5) - 1.0/12) * ((x-0.5)*(x-0.5) - 1.0/12) / 4

	d := math.Abs(x-z) - 0.5
	d2 := d * d
	b := (d2*d2 - d2/2 + 7.0/240) / 24

	return a - b
}

// DesignMatrix returns the n x (k+2) spline design matrix for the data x
// and the k knots.  The first two columns are an intercept and x, and
// column j+2 is RK(x, knots[j]).
func DesignMatrix(x, knots []float64) *mat.Dense {

	n := len(x)
	k := len(knots)

	d := mat.NewDense(n, k+2, nil)
	for i, v := range x {
		d.Set(i, 0, 1)
		d.Set(i, 1, v)
		for j, kn := range knots {
			d.Set(i, j+2, RK(v, kn))
		}
	}

	return d
}

// Penalty returns the (k+2) x (k+2) roughness penalty matrix for the
// given knots.  The rows and columns for the intercept and linear term
// are zero.
func Penalty(knots []float64) *mat.SymDense {

	k := len(knots)
	s := mat.NewSymDense(k+2, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			s.SetSym(i+2, j+2, RK(knots[i], knots[j]))
		}
	}

	return s
}

// EvenKnots returns k knots evenly spaced in the interior of [0, 1].
func EvenKnots(k int) []float64 {
	knots := make([]float64, k)
	for j := range knots {
		knots[j] = float64(j+1) / float64(k+1)
	}
	return knots
}

// Rescale maps x linearly onto [0, 1].
func Rescale(x []float64) ([]float64, error) {

	if len(x) == 0 {
		return nil, &statmodel.ConfigurationError{
			Op:     "Rescale",
			Detail: "no data",
			Err:    statmodel.ErrDimension,
		}
	}

	mn, mx := floats.Min(x), floats.Max(x)
	if mx <= mn {
		return nil, &statmodel.ConfigurationError{
			Op:     "Rescale",
			Detail: "covariate is constant",
		}
	}

	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = (v - mn) / (mx - mn)
	}

	return z, nil
}
