// Package mixed fits Gaussian linear mixed models with a single random
// effects design and two variance components,
//
//	y = X*b + Z*g + e,  g ~ N(0, tau^2*I),  e ~ N(0, sigma^2*I),
//
// by direct maximization of the marginal likelihood over
// theta = (log tau, log sigma), with the fixed effects profiled out.
package mixed

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// MixedConfig defines configuration parameters for fitting a linear
// mixed model.
type MixedConfig struct {

	// A logger to which logging information is written.  If nil,
	// nothing is logged.
	Log *zap.Logger

	// Start contains starting values for (log tau, log sigma).  If
	// nil, the search starts at (0, 0).
	Start []float64

	// Form determines how the likelihood is evaluated.
	Form LikelihoodForm

	// OptMethod is the optimization method, a Nelder-Mead simplex
	// search if nil.
	OptMethod optimize.Method

	// OptSettings controls the optimization, DefaultOptSettings is
	// used if nil.
	OptSettings *optimize.Settings

	// XNames are the names of the columns of the fixed effects design.
	XNames []string

	// GroupNames are the names of the columns of the random effects
	// design.
	GroupNames []string
}

// DefaultMixedConfig returns a default configuration struct for a
// linear mixed model.
func DefaultMixedConfig() *MixedConfig {
	return &MixedConfig{
		Form:        Decorrelated,
		OptSettings: DefaultOptSettings(),
	}
}

func (config *MixedConfig) logger() *zap.Logger {
	if config.Log == nil {
		return zap.NewNop()
	}
	return config.Log
}

// MixedModel is a linear mixed model with a fixed effects design X and
// a random effects design Z.
type MixedModel struct {

	// The response
	y []float64

	// Fixed effects design
	x mat.Matrix

	// Random effects design
	z mat.Matrix

	config *MixedConfig

	xnames     []string
	groupNames []string
}

// NewMixedModel returns a linear mixed model for the response y, fixed
// effects design x and random effects design z.  The designs must have
// one row per element of y, and x must have full column rank.
func NewMixedModel(y []float64, x, z mat.Matrix, config *MixedConfig) (*MixedModel, error) {

	if config == nil {
		config = DefaultMixedConfig()
	}

	if _, err := checkDims("NewMixedModel", y, x, z, []float64{0, 0}); err != nil {
		return nil, err
	}

	if err := statmodel.CheckFullRank("NewMixedModel", x); err != nil {
		return nil, err
	}

	if config.Start != nil && len(config.Start) != 2 {
		return nil, &statmodel.ConfigurationError{
			Op:     "NewMixedModel",
			Detail: fmt.Sprintf("starting values have length %d, expected 2", len(config.Start)),
			Err:    statmodel.ErrDimension,
		}
	}

	_, p := x.Dims()
	xnames := config.XNames
	if xnames == nil {
		for j := 0; j < p; j++ {
			xnames = append(xnames, fmt.Sprintf("x%d", j+1))
		}
	} else if len(xnames) != p {
		return nil, &statmodel.ConfigurationError{
			Op:     "NewMixedModel",
			Detail: fmt.Sprintf("%d names for %d fixed effects", len(xnames), p),
			Err:    statmodel.ErrDimension,
		}
	}

	_, q := z.Dims()
	gnames := config.GroupNames
	if gnames == nil {
		for j := 0; j < q; j++ {
			gnames = append(gnames, fmt.Sprintf("%d", j+1))
		}
	} else if len(gnames) != q {
		return nil, &statmodel.ConfigurationError{
			Op:     "NewMixedModel",
			Detail: fmt.Sprintf("%d names for %d random effects", len(gnames), q),
			Err:    statmodel.ErrDimension,
		}
	}

	return &MixedModel{
		y:          y,
		x:          x,
		z:          z,
		config:     config,
		xnames:     xnames,
		groupNames: gnames,
	}, nil
}

// NewMixedModelFromData returns a random intercept model in which the
// fixed effects design contains an intercept followed by the named
// covariates, and the random effects design is the indicator matrix of
// the distinct values of the group variable.
func NewMixedModelFromData(data statmodel.Dataset, response, group string, covariates []string, config *MixedConfig) (*MixedModel, error) {

	if config == nil {
		config = DefaultMixedConfig()
	}

	y, err := data.Get(response)
	if err != nil {
		return nil, err
	}

	g, err := data.Get(group)
	if err != nil {
		return nil, err
	}

	var covs [][]float64
	for _, na := range covariates {
		v, err := data.Get(na)
		if err != nil {
			return nil, err
		}
		covs = append(covs, v)
	}

	x := statmodel.InterceptDesign(len(y), covs...)
	z, levels, err := statmodel.Indicator(g)
	if err != nil {
		return nil, err
	}

	// Fill in names without modifying the caller's config.
	c := *config
	if c.XNames == nil {
		c.XNames = append([]string{"Intercept"}, covariates...)
	}
	if c.GroupNames == nil {
		for _, v := range levels {
			c.GroupNames = append(c.GroupNames, fmt.Sprintf("%s=%g", group, v))
		}
	}

	return NewMixedModel(y, x, z, &c)
}

// NumParams returns the number of fixed effects parameters.
func (model *MixedModel) NumParams() int {
	_, p := model.x.Dims()
	return p
}

// NumObs returns the number of observations.
func (model *MixedModel) NumObs() int {
	return len(model.y)
}

// NumGroups returns the number of random effects.
func (model *MixedModel) NumGroups() int {
	_, q := model.z.Dims()
	return q
}

// Design returns the fixed effects design matrix.
func (model *MixedModel) Design() mat.Matrix {
	return model.x
}

// RandomDesign returns the random effects design matrix.
func (model *MixedModel) RandomDesign() mat.Matrix {
	return model.z
}

// Response returns the response variable.
func (model *MixedModel) Response() []float64 {
	return model.y
}

// Form returns the likelihood form used to fit the model.
func (model *MixedModel) Form() LikelihoodForm {
	return model.config.Form
}

// NegLogLike returns the profile negative log-likelihood of the model at
// theta = (log tau, log sigma), using the configured likelihood form.
func (model *MixedModel) NegLogLike(theta []float64) (float64, error) {
	return model.config.Form.Objective()(model.y, model.x, model.z, theta)
}

// MixedResults describes the results of fitting a linear mixed model.
type MixedResults struct {
	statmodel.BaseResults

	opt *OptResult

	// Sampling covariance of (log tau, log sigma), vectorized
	thetaVcov []float64

	ranef []float64
}

// Fit fits the model to the data.  Failure of the optimizer to converge
// is not an error, it is reported by the Converged and Status methods of
// the returned results.
func (model *MixedModel) Fit() (*MixedResults, error) {

	log := model.config.logger()
	obj := model.config.Form.Objective()

	log.Info("fitting linear mixed model",
		zap.Stringer("form", model.config.Form),
		zap.Int("nobs", model.NumObs()),
		zap.Int("nfixed", model.NumParams()),
		zap.Int("ngroups", model.NumGroups()),
	)

	opt, err := Minimize(obj, model.y, model.x, model.z, model.config.Start, model.config)
	if err != nil {
		return nil, err
	}

	tau := math.Exp(opt.Theta[0])
	sigma := math.Exp(opt.Theta[1])

	var params, vcov []float64
	switch model.config.Form {
	case Decorrelated:
		params, vcov, err = GLS(model.y, model.x, model.z, tau, sigma)
		if err != nil {
			return nil, err
		}
	case Multivariate:
		params, err = statmodel.OLS(model.y, model.x)
		if err != nil {
			return nil, err
		}
		vcov, err = olsVcov(model.x, model.z, tau, sigma)
		if err != nil {
			return nil, err
		}
	}

	ranef, err := BLUP(model.y, model.x, model.z, params, tau, sigma)
	if err != nil {
		return nil, err
	}

	thetaVcov, err := model.thetaVcov(opt.Theta)
	if err != nil {
		log.Warn("unable to estimate the sampling covariance of the variance parameters",
			zap.Error(err))
	}

	log.Info("finished fitting linear mixed model",
		zap.Float64("tau", tau),
		zap.Float64("sigma", sigma),
		zap.Float64("loglike", -opt.F),
		zap.Bool("converged", opt.Converged),
	)

	return &MixedResults{
		BaseResults: statmodel.NewBaseResults(model, -opt.F, params, model.xnames, vcov),
		opt:         opt,
		thetaVcov:   thetaVcov,
		ranef:       ranef,
	}, nil
}

// thetaVcov inverts a numerical Hessian of the negative log-likelihood
// at theta.
func (model *MixedModel) thetaVcov(theta []float64) ([]float64, error) {

	f := func(x []float64) float64 {
		v, err := model.NegLogLike(x)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var hess mat.SymDense
	fd.Hessian(&hess, f, theta, &fd.Settings{Formula: fd.Central, Step: 1e-4})
	if statmodel.NaNOrInf(&hess) {
		return nil, &statmodel.NumericalError{
			Op:     "thetaVcov",
			Matrix: "Hessian",
			Detail: "likelihood could not be evaluated near the estimate",
			Err:    statmodel.ErrNotPositiveDefinite,
		}
	}

	return statmodel.InvertHessian(&hess)
}

// Tau returns the estimated standard deviation of the random effects.
func (rslt *MixedResults) Tau() float64 {
	return math.Exp(rslt.opt.Theta[0])
}

// Sigma returns the estimated standard deviation of the residual errors.
func (rslt *MixedResults) Sigma() float64 {
	return math.Exp(rslt.opt.Theta[1])
}

// Theta returns the estimated (log tau, log sigma).
func (rslt *MixedResults) Theta() []float64 {
	return rslt.opt.Theta
}

// ThetaStdErr returns the standard errors of log tau and log sigma, or
// nil if they could not be computed.
func (rslt *MixedResults) ThetaStdErr() []float64 {
	if rslt.thetaVcov == nil {
		return nil
	}
	return []float64{math.Sqrt(rslt.thetaVcov[0]), math.Sqrt(rslt.thetaVcov[3])}
}

// Converged returns true if the optimizer converged.
func (rslt *MixedResults) Converged() bool {
	return rslt.opt.Converged
}

// Status returns the termination status of the optimizer.
func (rslt *MixedResults) Status() optimize.Status {
	return rslt.opt.Status
}

// OptResult returns the details of the optimization.
func (rslt *MixedResults) OptResult() *OptResult {
	return rslt.opt
}

// RandomEffects returns the predicted random effects, one per column of
// the random effects design.
func (rslt *MixedResults) RandomEffects() []float64 {
	return rslt.ranef
}

// FittedValues returns the conditional fitted values X*b + Z*g.
func (rslt *MixedResults) FittedValues() []float64 {

	model := rslt.Model().(*MixedModel)
	fv := rslt.BaseResults.FittedValues(nil)

	n := len(fv)
	q := len(rslt.ranef)
	zg := make([]float64, n)
	mat.NewVecDense(n, zg).MulVec(model.z, mat.NewVecDense(q, rslt.ranef))
	for i := range fv {
		fv[i] += zg[i]
	}

	return fv
}
