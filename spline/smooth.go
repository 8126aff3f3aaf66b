package spline

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mixedsmooth/mixed"
	"github.com/kshedden/mixedsmooth/statmodel"
)

// SmoothConfig defines configuration parameters for fitting a penalized
// spline as a mixed model.
type SmoothConfig struct {

	// A logger to which logging information is written.  If nil,
	// nothing is logged.
	Log *zap.Logger

	// Configuration of the mixed model fit.  If its logger is nil, Log
	// is used.  If no starting values are given they are derived from
	// the residual variance of the unpenalized fit.
	Mixed *mixed.MixedConfig
}

// DefaultSmoothConfig returns a default configuration struct for a
// penalized spline fit.
func DefaultSmoothConfig() *SmoothConfig {
	return &SmoothConfig{
		Mixed: mixed.DefaultMixedConfig(),
	}
}

// SmoothResults describes a penalized spline fit obtained from a mixed
// model.
type SmoothResults struct {

	// The knots of the spline basis
	Knots []float64

	// The fixed/random split of the basis
	Reparam *Reparam

	// The mixed model fit
	Mixed *mixed.MixedResults

	// Generalized least squares estimates of the fixed effects, and
	// the corresponding predicted random effects.
	FixedEffects  []float64
	RandomEffects []float64

	// Coefficients of the original spline basis
	Coeff []float64

	// The smoothing parameter implied by the variance components,
	// sigma^2/tau^2.
	Lambda float64

	x []float64
}

// FitMixed fits a penalized cubic regression spline of y on x, with the
// given knots, choosing the amount of smoothing by maximum likelihood in
// the equivalent mixed model.  The values of x should lie in [0, 1].
func FitMixed(y, x, knots []float64, config *SmoothConfig) (*SmoothResults, error) {

	if config == nil {
		config = DefaultSmoothConfig()
	}
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	if len(y) != len(x) {
		return nil, &statmodel.ConfigurationError{
			Op:     "FitMixed",
			Detail: fmt.Sprintf("y has length %d, x has length %d", len(y), len(x)),
			Err:    statmodel.ErrDimension,
		}
	}

	design := DesignMatrix(x, knots)
	rp, err := SplitFixedRandom(Penalty(knots), design)
	if err != nil {
		return nil, err
	}

	var mc mixed.MixedConfig
	if config.Mixed != nil {
		mc = *config.Mixed
	} else {
		mc = *mixed.DefaultMixedConfig()
	}
	if mc.Log == nil {
		mc.Log = log
	}
	if mc.XNames == nil {
		mc.XNames = []string{"null1", "null2"}
	}
	if mc.Start == nil {
		mc.Start, err = startValues(y, rp.XF)
		if err != nil {
			return nil, err
		}
	}

	model, err := mixed.NewMixedModel(y, rp.XF, rp.Z, &mc)
	if err != nil {
		return nil, err
	}

	mr, err := model.Fit()
	if err != nil {
		return nil, err
	}
	tau, sigma := mr.Tau(), mr.Sigma()

	// The multivariate form estimates the mean by OLS, the spline
	// coefficients always use GLS.
	bf, _, err := mixed.GLS(y, rp.XF, rp.Z, tau, sigma)
	if err != nil {
		return nil, err
	}
	u, err := mixed.BLUP(y, rp.XF, rp.Z, bf, tau, sigma)
	if err != nil {
		return nil, err
	}

	rslt := &SmoothResults{
		Knots:         knots,
		Reparam:       rp,
		Mixed:         mr,
		FixedEffects:  bf,
		RandomEffects: u,
		Coeff:         rp.Coefficients(bf, u),
		Lambda:        sigma * sigma / (tau * tau),
		x:             x,
	}

	log.Info("fitted penalized spline",
		zap.Int("nobs", len(y)),
		zap.Int("nknots", len(knots)),
		zap.Float64("tau", tau),
		zap.Float64("sigma", sigma),
		zap.Float64("lambda", rslt.Lambda),
		zap.Bool("converged", mr.Converged()),
	)

	return rslt, nil
}

// startValues uses the residual standard deviation of the unpenalized
// fit as the starting value for both tau and sigma.
func startValues(y []float64, xf mat.Matrix) ([]float64, error) {

	b, err := statmodel.OLS(y, xf)
	if err != nil {
		return nil, err
	}
	r := statmodel.Residuals(y, xf, b)
	sd := math.Sqrt(floats.Dot(r, r) / float64(len(r)))
	if sd == 0 {
		sd = 1
	}

	return []float64{math.Log(sd), math.Log(sd)}, nil
}

// Predict returns the fitted spline evaluated at x.
func (rslt *SmoothResults) Predict(x []float64) []float64 {

	d := DesignMatrix(x, rslt.Knots)
	n, p := d.Dims()

	f := make([]float64, n)
	mat.NewVecDense(n, f).MulVec(d, mat.NewVecDense(p, rslt.Coeff))

	return f
}

// FittedValues returns the fitted spline at the observed covariate
// values.
func (rslt *SmoothResults) FittedValues() []float64 {
	return rslt.Predict(rslt.x)
}
