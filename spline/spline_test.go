package spline

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/mixedsmooth/datasets"
	"github.com/kshedden/mixedsmooth/mixed"
	"github.com/kshedden/mixedsmooth/statmodel"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

// sine returns n noisy observations of a sine curve on [0, 1].
func sine(n int, seed uint64) ([]float64, []float64) {

	eps := distuv.Normal{Mu: 0, Sigma: 0.2, Src: rand.NewSource(seed)}

	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = (float64(i) + 0.5) / float64(n)
		y[i] = math.Sin(2*math.Pi*x[i]) + eps.Rand()
	}

	return y, x
}

func fitted(x mat.Matrix, coeff []float64) []float64 {
	n, p := x.Dims()
	f := make([]float64, n)
	mat.NewVecDense(n, f).MulVec(x, mat.NewVecDense(p, coeff))
	return f
}

func TestRK(t *testing.T) {

	if !scalarClose(RK(0.5, 0.5), 1.0/320, 1e-15) {
		fmt.Printf("RK(0.5, 0.5)=%v\n", RK(0.5, 0.5))
		t.Fail()
	}

	for _, v := range [][2]float64{{0.1, 0.7}, {0.25, 0.3}, {0, 1}} {
		if !scalarClose(RK(v[0], v[1]), RK(v[1], v[0]), 1e-15) {
			t.Fail()
		}
	}
}

func TestDesignMatrix(t *testing.T) {

	knots := EvenKnots(7)
	assert.True(t, floats.EqualApprox(knots, []float64{0.125, 0.25, 0.375, 0.5, 0.625, 0.75, 0.875}, 1e-15))

	_, x := sine(20, 1)
	d := DesignMatrix(x, knots)

	r, c := d.Dims()
	assert.Equal(t, 20, r)
	assert.Equal(t, 9, c)

	assert.Equal(t, statmodel.Ones(20), mat.Col(nil, 0, d))
	assert.Equal(t, x, mat.Col(nil, 1, d))
	assert.Equal(t, RK(x[3], knots[4]), d.At(3, 6))
}

func TestPenaltyNullSpace(t *testing.T) {

	knots := EvenKnots(7)
	s := Penalty(knots)
	assert.Equal(t, 9, s.SymmetricDim())

	for j := 0; j < 9; j++ {
		assert.Equal(t, 0.0, s.At(0, j))
		assert.Equal(t, 0.0, s.At(1, j))
	}
	assert.Equal(t, RK(knots[1], knots[5]), s.At(3, 7))

	x := make([]float64, 100)
	floats.Span(x, 0, 1)

	for _, knots := range [][]float64{
		EvenKnots(1),
		EvenKnots(2),
		EvenKnots(7),
		EvenKnots(10),
		EvenKnots(20),
		EvenKnots(40),
		{0.01, 0.02, 0.5, 0.98, 0.99},
	} {
		s := Penalty(knots)
		vals, _, err := statmodel.EigenSym(s)
		require.NoError(t, err)

		amax := math.Max(math.Abs(vals[0]), math.Abs(vals[len(vals)-1]))
		var nzero int
		for _, v := range vals {
			if v <= NullTol*amax {
				nzero++
			}
		}
		assert.Equal(t, NullDim, nzero, "knots %v", knots)

		// The penalty is positive semidefinite
		assert.True(t, vals[0] > -NullTol*amax, "knots %v", knots)

		rp, err := SplitFixedRandom(s, DesignMatrix(x, knots))
		require.NoError(t, err, "knots %v", knots)
		_, k := rp.Z.Dims()
		assert.Equal(t, len(knots), k)
	}
}

func TestMatSqrt(t *testing.T) {

	s := Penalty(EvenKnots(7))
	b, err := MatSqrt(s)
	require.NoError(t, err)

	var bb mat.Dense
	bb.Mul(b, b)
	if !mat.EqualApprox(&bb, s, 1e-9) {
		t.Fail()
	}
	if !mat.EqualApprox(b, b.T(), 1e-12) {
		t.Fail()
	}
}

func TestPenalizedEqualsRidge(t *testing.T) {

	y, x := sine(60, 2)
	knots := EvenKnots(7)
	d := DesignMatrix(x, knots)
	s := Penalty(knots)

	for _, lambda := range []float64{1e-2, 1, 100} {

		b1, err := PenalizedFit(y, d, s, lambda)
		require.NoError(t, err)
		b2, err := RidgeFit(y, d, s, lambda)
		require.NoError(t, err)

		if !floats.EqualApprox(fitted(d, b1), fitted(d, b2), 1e-6) {
			fmt.Printf("lambda=%v\n%v\n%v\n", lambda, b1, b2)
			t.Fail()
		}

		// The penalized fit solves (X'X + lambda*S) b = X'y
		var m mat.Dense
		m.Mul(d.T(), d)
		var ls mat.Dense
		ls.Scale(lambda, s)
		m.Add(&m, &ls)
		var lhs, rhs mat.VecDense
		lhs.MulVec(&m, mat.NewVecDense(9, b1))
		rhs.MulVec(d.T(), mat.NewVecDense(60, y))
		assert.True(t, mat.EqualApprox(&lhs, &rhs, 1e-6))
	}

	// More smoothing reduces the roughness penalty
	b1, _ := RidgeFit(y, d, s, 1e-2)
	b2, _ := RidgeFit(y, d, s, 100)
	pen := func(b []float64) float64 {
		bv := mat.NewVecDense(9, b)
		return mat.Inner(bv, s, bv)
	}
	assert.True(t, pen(b2) < pen(b1))

	_, err := RidgeFit(y, d, s, -1)
	assert.Error(t, err)
	_, err = PenalizedFit(y[0:10], d, s, 1)
	assert.True(t, errors.Is(err, statmodel.ErrDimension))
}

func TestSplitErrors(t *testing.T) {

	_, x := sine(10, 3)
	d := DesignMatrix(x, []float64{0.3, 0.6})

	// No null space
	_, err := SplitFixedRandom(statmodel.Symmetrize(statmodel.Eye(4)), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, statmodel.ErrNullSpace))
	var ce *statmodel.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	// Three dimensional null space
	s := mat.NewSymDense(4, nil)
	s.SetSym(3, 3, 1)
	_, err = SplitFixedRandom(s, d)
	assert.True(t, errors.Is(err, statmodel.ErrNullSpace))

	// Wrong size
	_, err = SplitFixedRandom(Penalty(EvenKnots(3)), d)
	assert.True(t, errors.Is(err, statmodel.ErrDimension))
}

func TestSplit(t *testing.T) {

	_, x := sine(40, 4)
	knots := EvenKnots(7)
	d := DesignMatrix(x, knots)
	s := Penalty(knots)

	rp, err := SplitFixedRandom(s, d)
	require.NoError(t, err)

	r, c := rp.XF.Dims()
	assert.Equal(t, 40, r)
	assert.Equal(t, 2, c)
	_, c = rp.Z.Dims()
	assert.Equal(t, 7, c)
	assert.Len(t, rp.DPos, 7)

	// The fixed part spans the intercept and linear terms
	for _, v := range [][]float64{statmodel.Ones(40), x} {
		b, err := statmodel.OLS(v, rp.XF)
		require.NoError(t, err)
		res := statmodel.Residuals(v, rp.XF, b)
		assert.InDelta(t, 0, floats.Norm(res, 2), 1e-10)
	}

	// Z is XR scaled by D^(-1/2)
	for j, dv := range rp.DPos {
		assert.True(t, dv > 0)
		zc := mat.Col(nil, j, rp.Z)
		xc := mat.Col(nil, j, rp.XR)
		floats.Scale(1/math.Sqrt(dv), xc)
		assert.True(t, floats.EqualApprox(zc, xc, 1e-12))
	}

	// The null space basis is not penalized
	var m mat.Dense
	m.Product(rp.UF.T(), s, rp.UF)
	assert.True(t, mat.EqualApprox(&m, mat.NewDense(2, 2, nil), 1e-12))

	// Coefficients reproduce the linear predictor
	bf := []float64{0.3, -1.2}
	u := []float64{1, -2, 0.5, 0, 3, 1, -1}
	b := rp.Coefficients(bf, u)
	lp := fitted(rp.XF, bf)
	floats.Add(lp, fitted(rp.Z, u))
	assert.True(t, floats.EqualApprox(fitted(d, b), lp, 1e-8))

	// and the penalty is u'u
	bv := mat.NewVecDense(9, b)
	assert.InDelta(t, floats.Dot(u, u), mat.Inner(bv, s, bv), 1e-8)

	assert.Panics(t, func() { rp.Coefficients(bf, u[0:3]) })
}

func TestRoundTrip(t *testing.T) {

	y, x := sine(60, 5)
	knots := EvenKnots(7)
	d := DesignMatrix(x, knots)
	s := Penalty(knots)

	rp, err := SplitFixedRandom(s, d)
	require.NoError(t, err)

	for _, v := range [][2]float64{{0.5, 0.2}, {2, 0.3}, {0.05, 0.25}} {

		tau, sigma := v[0], v[1]
		bf, _, err := mixed.GLS(y, rp.XF, rp.Z, tau, sigma)
		require.NoError(t, err)
		u, err := mixed.BLUP(y, rp.XF, rp.Z, bf, tau, sigma)
		require.NoError(t, err)

		lambda := sigma * sigma / (tau * tau)
		b1 := rp.Coefficients(bf, u)
		b2, err := RidgeFit(y, d, s, lambda)
		require.NoError(t, err)

		if !floats.EqualApprox(fitted(d, b1), fitted(d, b2), 1e-6) {
			fmt.Printf("tau=%v sigma=%v\n%v\n%v\n", tau, sigma, b1, b2)
			t.Fail()
		}
	}
}

func TestFitMixed(t *testing.T) {

	y, x := sine(60, 6)
	knots := EvenKnots(7)

	rslt, err := FitMixed(y, x, knots, nil)
	require.NoError(t, err)
	assert.True(t, rslt.Mixed.Converged())
	assert.True(t, rslt.Lambda > 0)

	tau, sigma := rslt.Mixed.Tau(), rslt.Mixed.Sigma()
	assert.InDelta(t, sigma*sigma/(tau*tau), rslt.Lambda, 1e-12*rslt.Lambda)

	// The mixed model fit is the penalized fit at the implied lambda
	d := DesignMatrix(x, knots)
	b, err := RidgeFit(y, d, Penalty(knots), rslt.Lambda)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(fitted(d, b), rslt.FittedValues(), 1e-6))

	// The fit recovers the sine curve
	fv := rslt.FittedValues()
	var mse float64
	for i := range fv {
		e := fv[i] - math.Sin(2*math.Pi*x[i])
		mse += e * e / float64(len(fv))
	}
	assert.True(t, mse < 0.04, "mse=%f", mse)
	assert.InDelta(t, 0.2, sigma, 0.08)

	// Predictions at the data points are the fitted values
	assert.True(t, floats.EqualApprox(rslt.Predict(x[0:5]), fv[0:5], 1e-12))

	_, err = FitMixed(y[0:10], x, knots, nil)
	assert.True(t, errors.Is(err, statmodel.ErrDimension))
}

func TestFitMixedMultivariate(t *testing.T) {

	y, x := sine(50, 7)
	knots := EvenKnots(5)

	config := DefaultSmoothConfig()
	config.Mixed.Form = mixed.Multivariate

	rslt, err := FitMixed(y, x, knots, config)
	require.NoError(t, err)

	// The spline coefficients are based on GLS regardless of the
	// likelihood form.
	d := DesignMatrix(x, knots)
	b, err := RidgeFit(y, d, Penalty(knots), rslt.Lambda)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(fitted(d, b), rslt.FittedValues(), 1e-6))
}

func TestSelectLambda(t *testing.T) {

	y, x := sine(60, 8)
	knots := EvenKnots(7)
	d := DesignMatrix(x, knots)
	s := Penalty(knots)

	lo, hi := 1e-8, 1e2
	lam, err := SelectLambda(y, d, s, lo, hi)
	require.NoError(t, err)
	assert.True(t, lam >= lo && lam <= hi)

	g, err := GCV(y, d, s, lam)
	require.NoError(t, err)
	for _, l := range []float64{lo, hi, 1e-5, 1e-3} {
		g1, err := GCV(y, d, s, l)
		require.NoError(t, err)
		assert.True(t, g <= g1*(1+1e-6), "lambda=%v", l)
	}

	_, err = SelectLambda(y, d, s, 1, 0.5)
	assert.Error(t, err)
}

func TestGCV(t *testing.T) {

	y, x := sine(30, 9)
	knots := EvenKnots(4)
	d := DesignMatrix(x, knots)
	s := Penalty(knots)

	// With a very large penalty the fit is a straight line with two
	// degrees of freedom.
	g, err := GCV(y, d, s, 1e10)
	require.NoError(t, err)

	lin := statmodel.InterceptDesign(30, x)
	b, err := statmodel.OLS(y, lin)
	require.NoError(t, err)
	r := statmodel.Residuals(y, lin, b)
	expected := 30 * floats.Dot(r, r) / (28 * 28)
	assert.InEpsilon(t, expected, g, 1e-4)
}

func TestRescale(t *testing.T) {

	z, err := Rescale([]float64{2, 4, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0.5}, z)

	_, err = Rescale([]float64{1, 1})
	assert.Error(t, err)

	_, err = Rescale(nil)
	assert.True(t, errors.Is(err, statmodel.ErrDimension))
}

func TestEngine(t *testing.T) {

	ds := datasets.Engine()
	size, err := ds.Get("size")
	require.NoError(t, err)
	wear, err := ds.Get("wear")
	require.NoError(t, err)

	x, err := Rescale(size)
	require.NoError(t, err)

	knots := EvenKnots(7)
	rslt, err := FitMixed(wear, x, knots, nil)
	require.NoError(t, err)
	assert.True(t, rslt.Lambda > 0)

	fv := rslt.FittedValues()
	for _, f := range fv {
		assert.False(t, math.IsNaN(f))
		assert.True(t, f > 1 && f < 6)
	}

	// The mixed model fit is the penalized fit at lambda = sigma^2/tau^2
	design := DesignMatrix(x, knots)
	coeff, err := RidgeFit(wear, design, Penalty(knots), rslt.Lambda)
	require.NoError(t, err)
	fr := fitted(design, coeff)
	for i := range fv {
		assert.InDelta(t, fr[i], fv[i], 1e-6)
	}
}
