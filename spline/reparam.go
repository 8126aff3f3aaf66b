package spline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// NullTol is the threshold, relative to the largest absolute
// eigenvalue, at or below which an eigenvalue of the penalty is taken
// to be zero.
const NullTol = 1e-8

// NullDim is the dimension of the null space of the cubic spline
// penalty, spanned by the intercept and linear terms.
const NullDim = 2

// Reparam expresses a penalized spline as a mixed model.  With
// b = UF*bf + UR*D^(-1/2)*u, the spline fit X*b is XF*bf + Z*u and the
// penalty b'*S*b is u'*u, so a penalized fit with smoothing parameter
// lambda corresponds to random effects u ~ N(0, sigma^2/lambda*I).
type Reparam struct {

	// Basis of the null space of the penalty, p x 2
	UF *mat.Dense

	// Eigenvectors of the penalty with positive eigenvalues, p x k
	UR *mat.Dense

	// The positive eigenvalues, in ascending order
	DPos []float64

	// Fixed effects design, X*UF
	XF *mat.Dense

	// The penalized part of the design, X*UR
	XR *mat.Dense

	// Random effects design, XR*D^(-1/2)
	Z *mat.Dense
}

// SplitFixedRandom splits the spline design into an unpenalized part
// (fixed effects) and a penalized part (random effects), using the
// eigendecomposition of the penalty s.  Eigenvalues are classified by
// their value relative to the largest one, and the null space of s must
// have dimension two.
func SplitFixedRandom(s mat.Symmetric, design mat.Matrix) (*Reparam, error) {

	n, p := design.Dims()
	if s.SymmetricDim() != p {
		return nil, &statmodel.ConfigurationError{
			Op:     "SplitFixedRandom",
			Detail: fmt.Sprintf("penalty is %d x %d, design has %d columns", s.SymmetricDim(), s.SymmetricDim(), p),
			Err:    statmodel.ErrDimension,
		}
	}

	vals, vecs, err := statmodel.EigenSym(s)
	if err != nil {
		return nil, err
	}

	var amax float64
	for _, v := range vals {
		amax = math.Max(amax, math.Abs(v))
	}

	var null, pos []int
	for j, v := range vals {
		if v > NullTol*amax {
			pos = append(pos, j)
		} else {
			null = append(null, j)
		}
	}

	if len(null) != NullDim {
		return nil, &statmodel.ConfigurationError{
			Op:     "SplitFixedRandom",
			Detail: fmt.Sprintf("penalty has %d zero eigenvalues, expected %d", len(null), NullDim),
			Err:    statmodel.ErrNullSpace,
		}
	}

	k := len(pos)
	uf := mat.NewDense(p, NullDim, nil)
	for j, c := range null {
		uf.SetCol(j, mat.Col(nil, c, vecs))
	}
	ur := mat.NewDense(p, k, nil)
	dpos := make([]float64, k)
	for j, c := range pos {
		ur.SetCol(j, mat.Col(nil, c, vecs))
		dpos[j] = vals[c]
	}

	xf := mat.NewDense(n, NullDim, nil)
	xf.Mul(design, uf)
	xr := mat.NewDense(n, k, nil)
	xr.Mul(design, ur)

	isd := make([]float64, k)
	for j, d := range dpos {
		isd[j] = 1 / math.Sqrt(d)
	}
	z := mat.NewDense(n, k, nil)
	z.Mul(xr, mat.NewDiagDense(k, isd))

	return &Reparam{
		UF:   uf,
		UR:   ur,
		DPos: dpos,
		XF:   xf,
		XR:   xr,
		Z:    z,
	}, nil
}

// Coefficients maps fixed effects bf and random effects u of the mixed
// model back to coefficients of the original spline basis.
func (rp *Reparam) Coefficients(bf, u []float64) []float64 {

	p, k := rp.UR.Dims()
	if len(bf) != NullDim || len(u) != k {
		msg := fmt.Sprintf("Coefficients: got %d fixed and %d random effects, expected %d and %d\n",
			len(bf), len(u), NullDim, k)
		panic(msg)
	}

	w := make([]float64, k)
	for j := range w {
		w[j] = u[j] / math.Sqrt(rp.DPos[j])
	}

	b := make([]float64, p)
	bv := mat.NewVecDense(p, b)
	bv.MulVec(rp.UF, mat.NewVecDense(NullDim, bf))

	var r mat.VecDense
	r.MulVec(rp.UR, mat.NewVecDense(k, w))
	bv.AddVec(bv, &r)

	return b
}
