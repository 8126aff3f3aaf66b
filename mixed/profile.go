package mixed

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Component identifies one of the two variance parameters.
type Component int

// ProfileTau profiles the random effects standard deviation,
// ProfileSigma profiles the residual standard deviation.
const (
	ProfileTau Component = iota
	ProfileSigma
)

// maxExpand limits the number of steps taken when searching for a point
// beyond the confidence limit.
const maxExpand = 100

// Profiler is used to do likelihood profile analysis on one of the
// variance parameters.  The other variance parameter is re-estimated
// at every point of the profile.
type Profiler struct {

	// The profile analysis is done with respect to this fitted model.
	results *MixedResults

	// The profiled component
	which Component

	// The MLE of the profiled standard deviation.
	mle float64

	// This is the largest log-likelihood value that can be
	// obtained by varying the profiled parameter.
	maxLogLike float64

	// A sequence of (standard deviation, log-likelihood) values that
	// lie on the profile curve.
	Profile [][2]float64

	// Warm start for the other component, on the log scale
	other float64
}

// NewProfiler returns a Profiler value that can be used to profile
// the given variance component of a fitted model.
func NewProfiler(result *MixedResults, which Component) *Profiler {

	pr := &Profiler{
		results: result,
		which:   which,
	}

	theta := result.Theta()
	pr.mle = math.Exp(theta[which])
	pr.other = theta[1-which]
	pr.maxLogLike = result.LogLike()

	return pr
}

// MLE returns the maximum likelihood estimate of the profiled standard
// deviation.
func (pr *Profiler) MLE() float64 {
	return pr.mle
}

type profPoint [][2]float64

func (a profPoint) Len() int           { return len(a) }
func (a profPoint) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a profPoint) Less(i, j int) bool { return a[i][0] < a[j][0] }

// LogLike returns the profile log likelihood value at the given value
// of the profiled standard deviation.
func (pr *Profiler) LogLike(sd float64) float64 {

	model := pr.results.Model().(*MixedModel)
	k := int(pr.which)

	theta := make([]float64, 2)
	theta[k] = math.Log(sd)

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			theta[1-k] = x[0]
			f, err := model.NegLogLike(theta)
			if err != nil || math.IsNaN(f) {
				return InvalidObjective
			}
			return f
		},
	}

	r, err := optimize.Minimize(p, []float64{pr.other}, DefaultOptSettings(), &optimize.NelderMead{})
	if r == nil {
		panic(err)
	}
	if r.F < InvalidObjective {
		pr.other = r.X[0]
	}

	return -r.F
}

// bisectroot finds a point where f crosses yt, on the log scale, given a
// bracket [x0, x1] with function values y0 and y1.
func bisectroot(f func(float64) float64, x0, x1, y0, y1, yt float64) (float64, [][2]float64) {

	if (y0-yt)*(y1-yt) > 0 {
		panic("bisectroot invalid bracket")
	}

	var hist [][2]float64

	for math.Log(x1/x0) > 1e-6 {
		x := math.Sqrt(x0 * x1)
		y := f(x)
		hist = append(hist, [2]float64{x, y})
		if (y-yt)*(y0-yt) > 0 {
			x0 = x
			y0 = y
		} else {
			x1 = x
		}
	}

	return math.Sqrt(x0 * x1), hist
}

// ConfInt identifies values sd0, sd1 of the profiled standard deviation
// that define a profile confidence interval with coverage probability
// prob.  All points on the profile likelihood visited during the search
// are added to the Profile field of the Profiler value.  If the profile
// does not fall below the threshold on one side, the last point visited
// on that side is returned.
func (pr *Profiler) ConfInt(prob float64) (float64, float64) {

	qp := distuv.ChiSquared{K: 1}.Quantile(prob) / 2
	target := pr.maxLogLike - qp

	start := pr.other

	// Left side
	sd0 := 0.9 * pr.mle
	ll0 := pr.LogLike(sd0)
	pr.Profile = append(pr.Profile, [2]float64{sd0, ll0})
	for i := 0; ll0 > target && i < maxExpand; i++ {
		sd0 *= 0.9
		ll0 = pr.LogLike(sd0)
		pr.Profile = append(pr.Profile, [2]float64{sd0, ll0})
	}
	if ll0 <= target {
		var hist [][2]float64
		sd0, hist = bisectroot(pr.LogLike, sd0, pr.mle, ll0, pr.maxLogLike, target)
		pr.Profile = append(pr.Profile, hist...)
	}

	// Right side
	pr.other = start
	sd1 := 1.1 * pr.mle
	ll1 := pr.LogLike(sd1)
	pr.Profile = append(pr.Profile, [2]float64{sd1, ll1})
	for i := 0; ll1 > target && i < maxExpand; i++ {
		sd1 *= 1.1
		ll1 = pr.LogLike(sd1)
		pr.Profile = append(pr.Profile, [2]float64{sd1, ll1})
	}
	if ll1 <= target {
		var hist [][2]float64
		sd1, hist = bisectroot(pr.LogLike, pr.mle, sd1, pr.maxLogLike, ll1, target)
		pr.Profile = append(pr.Profile, hist...)
	}

	pr.other = start
	sort.Sort(profPoint(pr.Profile))

	return sd0, sd1
}
