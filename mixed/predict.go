package mixed

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// PredictRandomEffects returns the best linear unbiased predictor of the
// random effects g in y = X*b + Z*g + e, given the standard deviations
// tau (of g) and sigma (of e).  The fixed effects are estimated by
// ordinary least squares of y on x.  The result has one element per
// column of z.
func PredictRandomEffects(y []float64, x, z mat.Matrix, tau, sigma float64) ([]float64, error) {

	if _, err := checkDims("PredictRandomEffects", y, x, z, []float64{tau, sigma}); err != nil {
		return nil, err
	}

	b, err := statmodel.OLS(y, x)
	if err != nil {
		return nil, err
	}

	return blup(y, x, z, b, tau, sigma)
}

// BLUP returns the best linear unbiased predictor of the random effects
// for the given fixed effects coefficients beta.  When beta is the
// generalized least squares estimate at (tau, sigma), these are the
// usual mixed model predictions.
func BLUP(y []float64, x, z mat.Matrix, beta []float64, tau, sigma float64) ([]float64, error) {

	if _, err := checkDims("BLUP", y, x, z, []float64{tau, sigma}); err != nil {
		return nil, err
	}
	if _, p := x.Dims(); p != len(beta) {
		return nil, &statmodel.ConfigurationError{
			Op:     "BLUP",
			Detail: fmt.Sprintf("beta has length %d, X has %d columns", len(beta), p),
			Err:    statmodel.ErrDimension,
		}
	}

	return blup(y, x, z, beta, tau, sigma)
}

// blup computes tau^2 Z' (tau^2 Z Z' / sigma^2 + I)^-1 r / sigma^2, with
// r = y - X*b.
func blup(y []float64, x, z mat.Matrix, b []float64, tau, sigma float64) ([]float64, error) {

	n := len(y)
	_, q := z.Dims()
	r := statmodel.Residuals(y, x, b)

	// Sigma / sigma^2
	s2 := sigma * sigma
	ssc := MarginalCov(z, tau/sigma, 1)

	var chol mat.Cholesky
	if ok := chol.Factorize(ssc); !ok {
		return nil, notPosDef("BLUP", "scaled marginal covariance", tau, sigma)
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, mat.NewVecDense(n, r)); err != nil {
		return nil, notPosDef("BLUP", "scaled marginal covariance", tau, sigma)
	}

	g := make([]float64, q)
	gv := mat.NewVecDense(q, g)
	gv.MulVec(z.T(), &w)
	gv.ScaleVec(tau*tau/s2, gv)

	return g, nil
}
