package spline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// MatSqrt returns the symmetric square root of a positive semidefinite
// matrix.  Eigenvalues that are negative due to rounding are treated as
// zero.
func MatSqrt(s mat.Symmetric) (*mat.Dense, error) {

	vals, vecs, err := statmodel.EigenSym(s)
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		vals[i] = math.Sqrt(math.Max(v, 0))
	}

	var b mat.Dense
	b.Product(vecs, mat.NewDiagDense(len(vals), vals), vecs.T())

	return &b, nil
}

func checkPenalty(op string, y []float64, x mat.Matrix, s mat.Symmetric, lambda float64) error {

	n, p := x.Dims()
	if n != len(y) || s.SymmetricDim() != p {
		return &statmodel.ConfigurationError{
			Op: op,
			Detail: fmt.Sprintf("y has length %d, X is %d x %d, penalty is %d x %d",
				len(y), n, p, s.SymmetricDim(), s.SymmetricDim()),
			Err: statmodel.ErrDimension,
		}
	}

	if lambda < 0 {
		return &statmodel.ConfigurationError{
			Op:     op,
			Detail: fmt.Sprintf("smoothing parameter %g is negative", lambda),
		}
	}

	return nil
}

// PenalizedFit returns the coefficients minimizing
// ||y - X*b||^2 + lambda*b'*S*b, obtained by ordinary least squares on
// the data augmented with sqrt(lambda)*sqrt(S) and zero responses.
func PenalizedFit(y []float64, x mat.Matrix, s mat.Symmetric, lambda float64) ([]float64, error) {

	if err := checkPenalty("PenalizedFit", y, x, s, lambda); err != nil {
		return nil, err
	}

	n, p := x.Dims()

	b, err := MatSqrt(s)
	if err != nil {
		return nil, err
	}

	xa := mat.NewDense(n+p, p, nil)
	xa.Slice(0, n, 0, p).(*mat.Dense).Copy(x)
	xa.Slice(n, n+p, 0, p).(*mat.Dense).Scale(math.Sqrt(lambda), b)

	ya := make([]float64, n+p)
	copy(ya, y)

	return statmodel.OLS(ya, xa)
}

// penalizedSystem returns the Cholesky factorization of X'X + lambda*S.
func penalizedSystem(op string, x mat.Matrix, s mat.Symmetric, lambda float64) (*mat.Cholesky, error) {

	_, p := x.Dims()

	var ls mat.SymDense
	ls.ScaleSym(lambda, s)

	m := mat.NewSymDense(p, nil)
	m.SymOuterK(1, x.T())
	m.AddSym(m, &ls)

	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, &statmodel.NumericalError{
			Op:     op,
			Matrix: "penalized cross product",
			Detail: fmt.Sprintf("lambda=%g", lambda),
			Err:    statmodel.ErrNotPositiveDefinite,
		}
	}

	return &chol, nil
}

// RidgeFit returns the penalized least squares coefficients
// (X'X + lambda*S)^-1 X'y, computed directly.
func RidgeFit(y []float64, x mat.Matrix, s mat.Symmetric, lambda float64) ([]float64, error) {

	if err := checkPenalty("RidgeFit", y, x, s, lambda); err != nil {
		return nil, err
	}

	n, p := x.Dims()

	chol, err := penalizedSystem("RidgeFit", x, s, lambda)
	if err != nil {
		return nil, err
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, y))

	coeff := make([]float64, p)
	if err := chol.SolveVecTo(mat.NewVecDense(p, coeff), &xty); err != nil {
		return nil, &statmodel.NumericalError{
			Op:     "RidgeFit",
			Matrix: "penalized cross product",
			Detail: err.Error(),
		}
	}

	return coeff, nil
}

// GCV returns the generalized cross validation score
// n*RSS / (n - tr(A))^2 of the penalized fit with smoothing parameter
// lambda, where A is the influence matrix X (X'X + lambda*S)^-1 X'.
func GCV(y []float64, x mat.Matrix, s mat.Symmetric, lambda float64) (float64, error) {

	if err := checkPenalty("GCV", y, x, s, lambda); err != nil {
		return 0, err
	}

	n, _ := x.Dims()

	chol, err := penalizedSystem("GCV", x, s, lambda)
	if err != nil {
		return 0, err
	}

	var xtx, w mat.Dense
	xtx.Mul(x.T(), x)
	if err := chol.SolveTo(&w, &xtx); err != nil {
		return 0, &statmodel.NumericalError{Op: "GCV", Matrix: "penalized cross product", Detail: err.Error()}
	}
	edf := mat.Trace(&w)

	coeff, err := RidgeFit(y, x, s, lambda)
	if err != nil {
		return 0, err
	}
	r := statmodel.Residuals(y, x, coeff)
	rss := floats.Dot(r, r)

	d := float64(n) - edf
	return float64(n) * rss / (d * d), nil
}

// gridSize is the number of points on the log scale at which GCV is
// evaluated before refinement.
const gridSize = 41

// SelectLambda returns the smoothing parameter in [lo, hi] minimizing
// the GCV score.  The score is evaluated on a logarithmic grid, and the
// best grid point is refined by bisection.
func SelectLambda(y []float64, x mat.Matrix, s mat.Symmetric, lo, hi float64) (float64, error) {

	if !(lo > 0 && hi > lo) {
		return 0, &statmodel.ConfigurationError{
			Op:     "SelectLambda",
			Detail: fmt.Sprintf("invalid search interval [%g, %g]", lo, hi),
		}
	}

	llo, lhi := math.Log(lo), math.Log(hi)

	var ferr error
	f := func(l float64) float64 {
		v, err := GCV(y, x, s, math.Exp(l))
		if err != nil {
			ferr = err
			return math.Inf(1)
		}
		return v
	}

	grid := make([]float64, gridSize)
	floats.Span(grid, llo, lhi)
	vals := make([]float64, gridSize)
	for i, l := range grid {
		vals[i] = f(l)
	}
	if ferr != nil {
		return 0, ferr
	}

	k := floats.MinIdx(vals)
	switch k {
	case 0:
		return lo, nil
	case gridSize - 1:
		return hi, nil
	}

	l := bisection(f, grid[k-1], grid[k], grid[k+1], vals[k], 1e-6)
	if ferr != nil {
		return 0, ferr
	}

	return math.Exp(l), nil
}

// bisection minimizes f given a bracket x0 < x1 < x2 with f(x1) below
// f(x0) and f(x2).
func bisection(f func(float64) float64, x0, x1, x2, f1, tol float64) float64 {

	for x2-x0 > tol {
		if x1-x0 > x2-x1 {
			xx := (x0 + x1) / 2
			ff := f(xx)
			if ff < f1 {
				x2 = x1
				x1 = xx
				f1 = ff
			} else {
				x0 = xx
			}
		} else {
			xx := (x1 + x2) / 2
			ff := f(xx)
			if ff < f1 {
				x0 = x1
				x1 = xx
				f1 = ff
			} else {
				x2 = xx
			}
		}
	}

	return x1
}
