package statmodel

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// RankTol is the relative singular value threshold below which a
// design matrix is taken to be rank deficient.
const RankTol = 1e-10

// Ones returns a slice of length n filled with ones.
func Ones(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
	}
	return x
}

// Eye returns the n by n identity matrix.
func Eye(n int) *mat.DiagDense {
	return mat.NewDiagDense(n, Ones(n))
}

// NaNOrInf returns true if any element of the matrix is NaN or infinite.
func NaNOrInf(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// CheckFullRank returns a ConfigurationError if x does not have full
// column rank.
func CheckFullRank(op string, x mat.Matrix) error {

	n, p := x.Dims()
	if n < p {
		return &ConfigurationError{
			Op:     op,
			Detail: fmt.Sprintf("design has %d rows and %d columns", n, p),
			Err:    ErrRankDeficient,
		}
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return &NumericalError{Op: op, Matrix: "design", Detail: "SVD failed"}
	}
	if r := svd.Rank(RankTol); r < p {
		return &ConfigurationError{
			Op:     op,
			Detail: fmt.Sprintf("design has rank %d but %d columns", r, p),
			Err:    ErrRankDeficient,
		}
	}

	return nil
}

// OLS returns the ordinary least squares coefficients for the
// regression of y on the columns of x.  No intercept is added.
func OLS(y []float64, x mat.Matrix) ([]float64, error) {

	n, _ := x.Dims()
	if n != len(y) {
		return nil, &ConfigurationError{
			Op:     "OLS",
			Detail: fmt.Sprintf("design has %d rows, response has length %d", n, len(y)),
			Err:    ErrDimension,
		}
	}

	if err := CheckFullRank("OLS", x); err != nil {
		return nil, err
	}

	return LeastSquares(y, x)
}

// LeastSquares is OLS without the rank check.  The caller must already
// know that x has full column rank, e.g. because x is a fixed design
// checked once by CheckFullRank and transformed by a nonsingular matrix.
func LeastSquares(y []float64, x mat.Matrix) ([]float64, error) {

	n, p := x.Dims()

	var b mat.VecDense
	if err := b.SolveVec(x, mat.NewVecDense(n, y)); err != nil {
		return nil, &ConfigurationError{Op: "LeastSquares", Detail: err.Error(), Err: ErrRankDeficient}
	}

	coeff := make([]float64, p)
	for j := range coeff {
		coeff[j] = b.AtVec(j)
	}

	return coeff, nil
}

// Residuals returns y - x*coeff.
func Residuals(y []float64, x mat.Matrix, coeff []float64) []float64 {

	n, p := x.Dims()
	r := make([]float64, n)
	rv := mat.NewVecDense(n, r)
	rv.MulVec(x, mat.NewVecDense(p, coeff))
	for i := range r {
		r[i] = y[i] - r[i]
	}

	return r
}

type argsort struct {
	s    []float64
	inds []int
}

func (a argsort) Len() int {
	return len(a.s)
}

func (a argsort) Swap(i, j int) {
	a.s[i], a.s[j] = a.s[j], a.s[i]
	a.inds[i], a.inds[j] = a.inds[j], a.inds[i]
}

func (a argsort) Less(i, j int) bool {
	return a.s[i] < a.s[j]
}

// EigenSym returns the eigenvalues of the symmetric matrix s in
// ascending order, along with the eigenvectors as the columns of a
// matrix in the same order.  The ordering is established here by
// sorting, it does not rely on the convention of the eigensolver.
func EigenSym(s mat.Symmetric) ([]float64, *mat.Dense, error) {

	var es mat.EigenSym
	if !es.Factorize(s, true) {
		return nil, nil, &NumericalError{Op: "EigenSym", Matrix: "symmetric matrix", Detail: "eigendecomposition failed"}
	}

	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	n := len(vals)
	inds := make([]int, n)
	for i := range inds {
		inds[i] = i
	}
	sort.Stable(argsort{s: vals, inds: inds})

	sorted := mat.NewDense(n, n, nil)
	for j, k := range inds {
		sorted.SetCol(j, mat.Col(nil, k, &vecs))
	}

	return vals, sorted, nil
}

// Symmetrize returns the symmetric part (a + a')/2 of a square matrix.
func Symmetrize(a mat.Matrix) *mat.SymDense {

	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}

	return s
}
