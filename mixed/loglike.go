package mixed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// MarginalCov returns the marginal covariance tau^2*Z*Z' + sigma^2*I of
// the response in a linear mixed model with random effects design z.
func MarginalCov(z mat.Matrix, tau, sigma float64) *mat.SymDense {

	n, _ := z.Dims()

	var sig mat.SymDense
	sig.SymOuterK(tau*tau, z)
	for i := 0; i < n; i++ {
		sig.SetSym(i, i, sig.At(i, i)+sigma*sigma)
	}

	return &sig
}

// checkDims confirms that y, x, z and theta have conformable sizes and
// returns the number of observations.
func checkDims(op string, y []float64, x, z mat.Matrix, theta []float64) (int, error) {

	n := len(y)
	nx, _ := x.Dims()
	nz, _ := z.Dims()

	if nx != n || nz != n {
		return 0, &statmodel.ConfigurationError{
			Op:     op,
			Detail: fmt.Sprintf("y has length %d, X has %d rows, Z has %d rows", n, nx, nz),
			Err:    statmodel.ErrDimension,
		}
	}

	if len(theta) != 2 {
		return 0, &statmodel.ConfigurationError{
			Op:     op,
			Detail: fmt.Sprintf("theta has length %d, expected 2", len(theta)),
			Err:    statmodel.ErrDimension,
		}
	}

	return n, nil
}

func notPosDef(op, matrix string, tau, sigma float64) error {
	return &statmodel.NumericalError{
		Op:     op,
		Matrix: matrix,
		Detail: fmt.Sprintf("tau=%g, sigma=%g", tau, sigma),
		Err:    statmodel.ErrNotPositiveDefinite,
	}
}

// NegLogLike returns the negative log-likelihood of the Gaussian linear
// mixed model y = X*b + Z*g + e, with g ~ N(0, tau^2*I) and
// e ~ N(0, sigma^2*I), where theta = (log tau, log sigma).  The fixed
// effects b are profiled out.
//
// The response and design are decorrelated with the upper Cholesky
// factor U of the marginal covariance (U'U = Sigma), after which the
// fixed effects are estimated by ordinary least squares.  The rank of x
// is not checked here; Minimize and NewMixedModel check it once.
func NegLogLike(y []float64, x, z mat.Matrix, theta []float64) (float64, error) {

	n, err := checkDims("NegLogLike", y, x, z, theta)
	if err != nil {
		return 0, err
	}

	tau := math.Exp(theta[0])
	sigma := math.Exp(theta[1])
	sig := MarginalCov(z, tau, sigma)

	var chol mat.Cholesky
	if ok := chol.Factorize(sig); !ok {
		return 0, notPosDef("NegLogLike", "marginal covariance", tau, sigma)
	}
	var u mat.TriDense
	chol.UTo(&u)

	// Solve U' * ytil = y and U' * xtil = x
	var ytil mat.VecDense
	if err := ytil.SolveVec(u.TTri(), mat.NewVecDense(n, y)); err != nil {
		return 0, notPosDef("NegLogLike", "Cholesky factor", tau, sigma)
	}
	var xtil mat.Dense
	if err := xtil.Solve(u.TTri(), x); err != nil {
		return 0, notPosDef("NegLogLike", "Cholesky factor", tau, sigma)
	}

	yt := mat.Col(nil, 0, &ytil)
	b, err := statmodel.LeastSquares(yt, &xtil)
	if err != nil {
		return 0, err
	}
	r := statmodel.Residuals(yt, &xtil, b)

	var logdiag float64
	for i := 0; i < n; i++ {
		logdiag += math.Log(u.At(i, i))
	}

	ll := -float64(n)/2*math.Log(2*math.Pi) - logdiag - floats.Dot(r, r)/2

	return -ll, nil
}

// NegLogLikeMVN returns the negative log-likelihood of the same model
// as NegLogLike, evaluated directly as a multivariate normal density.
// The mean is taken from the ordinary least squares fit of y on x,
// ignoring the correlation structure.  This agrees with NegLogLike
// whenever the OLS and GLS fixed effects coincide, e.g. for balanced
// designs in which every group has the same covariate values.
func NegLogLikeMVN(y []float64, x, z mat.Matrix, theta []float64) (float64, error) {

	n, err := checkDims("NegLogLikeMVN", y, x, z, theta)
	if err != nil {
		return 0, err
	}

	tau := math.Exp(theta[0])
	sigma := math.Exp(theta[1])

	b, err := statmodel.LeastSquares(y, x)
	if err != nil {
		return 0, err
	}

	mu := make([]float64, n)
	_, p := x.Dims()
	mat.NewVecDense(n, mu).MulVec(x, mat.NewVecDense(p, b))

	dist, ok := distmv.NewNormal(mu, MarginalCov(z, tau, sigma), nil)
	if !ok {
		return 0, notPosDef("NegLogLikeMVN", "marginal covariance", tau, sigma)
	}

	return -dist.LogProb(y), nil
}

// GLS returns the generalized least squares estimate of the fixed
// effects at the given variance parameters, along with its sampling
// covariance (X' Sigma^-1 X)^-1 in vectorized form.
func GLS(y []float64, x, z mat.Matrix, tau, sigma float64) ([]float64, []float64, error) {

	n := len(y)

	var chol mat.Cholesky
	if ok := chol.Factorize(MarginalCov(z, tau, sigma)); !ok {
		return nil, nil, notPosDef("GLS", "marginal covariance", tau, sigma)
	}
	var u mat.TriDense
	chol.UTo(&u)

	var ytil mat.VecDense
	if err := ytil.SolveVec(u.TTri(), mat.NewVecDense(n, y)); err != nil {
		return nil, nil, notPosDef("GLS", "Cholesky factor", tau, sigma)
	}
	var xtil mat.Dense
	if err := xtil.Solve(u.TTri(), x); err != nil {
		return nil, nil, notPosDef("GLS", "Cholesky factor", tau, sigma)
	}

	b, err := statmodel.LeastSquares(mat.Col(nil, 0, &ytil), &xtil)
	if err != nil {
		return nil, nil, err
	}

	var xtx mat.Dense
	xtx.Mul(xtil.T(), &xtil)
	vcov, err := statmodel.InvertHessian(&xtx)
	if err != nil {
		return nil, nil, err
	}

	return b, vcov, nil
}

// olsVcov returns the sampling covariance of the ordinary least squares
// estimate when the response has covariance Sigma:
// (X'X)^-1 X' Sigma X (X'X)^-1, in vectorized form.
func olsVcov(x, z mat.Matrix, tau, sigma float64) ([]float64, error) {

	_, p := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xtxi mat.Dense
	if err := xtxi.Inverse(&xtx); err != nil {
		return nil, &statmodel.ConfigurationError{Op: "olsVcov", Detail: err.Error(), Err: statmodel.ErrRankDeficient}
	}

	var m, q mat.Dense
	m.Mul(MarginalCov(z, tau, sigma), x)
	q.Mul(x.T(), &m)

	var v mat.Dense
	v.Product(&xtxi, &q, &xtxi)

	vcov := make([]float64, p*p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			vcov[i*p+j] = v.At(i, j)
		}
	}

	return vcov, nil
}
