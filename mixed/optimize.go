package mixed

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// InvalidObjective is the objective value reported to the optimizer at
// points where the likelihood cannot be evaluated, e.g. because the
// marginal covariance is not numerically positive definite.
const InvalidObjective = 1e300

// Objective is a negative log-likelihood for the variance parameters
// theta = (log tau, log sigma), with the fixed effects profiled out.
// NegLogLike and NegLogLikeMVN are objectives.
type Objective func(y []float64, x, z mat.Matrix, theta []float64) (float64, error)

// LikelihoodForm selects how the marginal likelihood is evaluated.
type LikelihoodForm int

// Decorrelated evaluates the likelihood through a Cholesky
// decorrelation of the data, Multivariate evaluates the multivariate
// normal density directly.
const (
	Decorrelated LikelihoodForm = iota
	Multivariate
)

// Objective returns the negative log-likelihood function for the form.
func (f LikelihoodForm) Objective() Objective {
	switch f {
	case Decorrelated:
		return NegLogLike
	case Multivariate:
		return NegLogLikeMVN
	default:
		msg := fmt.Sprintf("Unknown likelihood form: %d\n", f)
		panic(msg)
	}
}

func (f LikelihoodForm) String() string {
	switch f {
	case Decorrelated:
		return "Decorrelated"
	case Multivariate:
		return "Multivariate"
	default:
		return fmt.Sprintf("LikelihoodForm(%d)", int(f))
	}
}

// OptResult describes the outcome of minimizing an objective.
type OptResult struct {

	// The minimizing variance parameters (log tau, log sigma)
	Theta []float64

	// The objective value at Theta
	F float64

	// The termination status reported by the optimizer
	Status optimize.Status

	// Converged is true if the optimizer terminated on a convergence
	// criterion rather than a limit or failure.
	Converged bool

	// Number of objective evaluations and iterations
	FuncEvaluations int
	MajorIterations int

	// Number of evaluations at which the objective could not be
	// computed and InvalidObjective was used instead.
	NumericalFailures int
}

// DefaultOptSettings returns the optimizer settings used when none are
// provided.  The tolerance is tight so that the variance parameter
// estimates agree with established mixed model software.
func DefaultOptSettings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: 10000,
		FuncEvaluations: 50000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 200,
		},
	}
}

// Minimize minimizes the objective over theta, starting from theta0,
// using a derivative-free simplex search.  The optimization method,
// settings and logger are taken from config, which may be nil.
//
// A NumericalError from the objective is treated as a very unfavorable
// objective value so that the search moves away from that region.  Any
// other error at the starting point is returned.  Failure to converge
// is reported through the Converged and Status fields, not as an error.
func Minimize(obj Objective, y []float64, x, z mat.Matrix, theta0 []float64, config *MixedConfig) (*OptResult, error) {

	if config == nil {
		config = DefaultMixedConfig()
	}
	log := config.logger()

	if theta0 == nil {
		theta0 = make([]float64, 2)
	}

	// Configuration problems do not depend on theta, so they are found
	// here rather than inside the search.
	if err := statmodel.CheckFullRank("Minimize", x); err != nil {
		return nil, err
	}
	f0, err := obj(y, x, z, theta0)
	if err != nil && !statmodel.IsNumerical(err) {
		return nil, fmt.Errorf("Minimize: objective at starting point %v: %w", theta0, err)
	}
	log.Debug("starting optimization",
		zap.Float64s("theta0", theta0),
		zap.Float64("f0", f0),
		zap.Error(err),
	)

	var nfail int
	p := optimize.Problem{
		Func: func(theta []float64) float64 {
			f, err := obj(y, x, z, theta)
			if err != nil {
				nfail++
				log.Debug("objective evaluation failed",
					zap.Float64s("theta", theta),
					zap.Error(err),
				)
				return InvalidObjective
			}
			if math.IsNaN(f) {
				nfail++
				return InvalidObjective
			}
			return f
		},
	}

	settings := config.OptSettings
	if settings == nil {
		settings = DefaultOptSettings()
	}

	method := config.OptMethod
	if method == nil {
		method = &optimize.NelderMead{}
	}

	start := make([]float64, len(theta0))
	copy(start, theta0)

	optrslt, err := optimize.Minimize(p, start, settings, method)
	if optrslt == nil {
		return nil, fmt.Errorf("Minimize: %w", err)
	}

	theta := make([]float64, len(optrslt.X))
	copy(theta, optrslt.X)

	rslt := &OptResult{
		Theta:             theta,
		F:                 optrslt.F,
		Status:            optrslt.Status,
		Converged:         err == nil && optrslt.Status.Err() == nil,
		FuncEvaluations:   optrslt.Stats.FuncEvaluations,
		MajorIterations:   optrslt.Stats.MajorIterations,
		NumericalFailures: nfail,
	}

	if !rslt.Converged {
		log.Warn("optimizer did not converge",
			zap.Stringer("status", optrslt.Status),
			zap.Float64s("theta", theta),
			zap.Float64("f", optrslt.F),
			zap.Error(err),
		)
	} else {
		log.Debug("optimizer converged",
			zap.Stringer("status", optrslt.Status),
			zap.Float64s("theta", theta),
			zap.Float64("f", optrslt.F),
			zap.Int("evaluations", rslt.FuncEvaluations),
		)
	}

	if rslt.F >= InvalidObjective {
		return rslt, &statmodel.NumericalError{
			Op:     "Minimize",
			Matrix: "marginal covariance",
			Detail: "no valid point was found",
			Err:    statmodel.ErrNotPositiveDefinite,
		}
	}

	return rslt, nil
}
