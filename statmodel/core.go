// Package statmodel holds the pieces shared by the mixed model and
// penalized spline packages: datasets, fitted-result bookkeeping,
// summary tables, error types and a few dense linear algebra helpers.
package statmodel

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

type Dtype = float64

// RegFitter is a regression model with a fixed-effects design matrix
// that can be fit to data.
type RegFitter interface {

	// Number of fixed-effects parameters in the model.
	NumParams() int

	// Number of observations in the data set
	NumObs() int

	// The fixed-effects design matrix, one row per observation.
	Design() mat.Matrix
}

// BaseResultser is a fitted model that can produce results (parameter estimates, etc.).
type BaseResultser interface {
	Model() RegFitter
	Names() []string
	LogLike() float64
	Params() []float64
	VCov() []float64
	StdErr() []float64
	ZScores() []float64
	PValues() []float64
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	model   RegFitter
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to the given fitted model.
// The vcov argument is the vectorized (row-major) sampling covariance of
// params, it may be nil.
func NewBaseResults(model RegFitter, loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {
	return BaseResults{
		model:   model,
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}
}

// Model produces the model value used to produce the results.
func (rslt *BaseResults) Model() RegFitter {
	return rslt.model
}

// FittedValues returns the fixed-effects linear predictor.  If x is
// nil, the fitted values are based on the design used to fit the
// model.  Otherwise x must have the same number of columns as the
// training design.
func (rslt *BaseResults) FittedValues(x mat.Matrix) []float64 {

	if x == nil {
		x = rslt.model.Design()
	}

	n, p := x.Dims()
	if p != len(rslt.params) {
		msg := fmt.Sprintf("Design has incorrect number of columns, %d != %d\n", p, len(rslt.params))
		panic(msg)
	}

	fv := make([]float64, n)
	mat.NewVecDense(n, fv).MulVec(x, mat.NewVecDense(p, rslt.params))

	return fv
}

// Names returns the covariate names for the variables in the model.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the sampling variance/covariance model for the parameters in the model.
// The matrix is vetorized to one dimension.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood value for the fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// StdErr returns the standard errors for the parameters in the model.
func (rslt *BaseResults) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}

	if rslt.stderr != nil {
		return rslt.stderr
	}

	p := len(rslt.params)
	rslt.stderr = make([]float64, p)
	for i := range rslt.stderr {
		rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
	}

	return rslt.stderr
}

// ZScores returns the Z-scores (the parameter estimates divided by the standard errors).
func (rslt *BaseResults) ZScores() []float64 {

	// No vcov, no z-scores
	if rslt.vcov == nil {
		return nil
	}

	if rslt.zscores != nil {
		return rslt.zscores
	}

	std := rslt.StdErr()
	rslt.zscores = make([]float64, len(std))
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

// PValues returns the p-values for the null hypothesis that each parameter's population
// value is equal to zero.
func (rslt *BaseResults) PValues() []float64 {

	// No vcov, no p-values
	if rslt.vcov == nil {
		return nil
	}

	if rslt.pvalues != nil {
		return rslt.pvalues
	}

	zs := rslt.ZScores()
	rslt.pvalues = make([]float64, len(zs))
	for i, z := range zs {
		rslt.pvalues[i] = 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	}

	return rslt.pvalues
}

// InvertHessian returns the sampling covariance matrix, in vectorized
// form, implied by the Hessian of a negative log-likelihood at its
// minimizer.
func InvertHessian(hess mat.Matrix) ([]float64, error) {

	p, _ := hess.Dims()
	vcov := make([]float64, p*p)
	vmat := mat.NewDense(p, p, vcov)
	if err := vmat.Inverse(hess); err != nil {
		return nil, &NumericalError{
			Op:     "InvertHessian",
			Matrix: "Hessian",
			Detail: "matrix is singular",
			Err:    err,
		}
	}

	return vcov, nil
}

// FmtStrings left-justifies a column of strings to a common width that
// is at least as wide as the column heading.
func FmtStrings(x interface{}, h string) []string {

	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}

	z := make([]string, len(y))
	c := fmt.Sprintf("%%-%ds", m)
	for i := range y {
		z[i] = fmt.Sprintf(c, y[i])
	}
	return z
}

// FmtFloats formats a column of numbers with four decimal places.
func FmtFloats(x interface{}, h string) []string {

	y := x.([]float64)
	s := make([]string, len(y))
	for i := range y {
		s[i] = fmt.Sprintf("%10.4f", y[i])
	}
	return s
}

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column.  It's concrete type should
	// be an array, e.g. of numbers or strings.
	Cols []interface{}

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Fmter formats the elements of an array of values.
type Fmter func(interface{}, string) []string

// line draws a rule of the given character across the table.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// top lays out the summary values in two columns.
func (s *SummaryTable) top(gap int) string {

	var w [2]int
	for j, x := range s.Top {
		if len(x) > w[j%2] {
			w[j%2] = len(x)
		}
	}

	var b strings.Builder
	for j, x := range s.Top {
		fmt.Fprintf(&b, "%-*s", w[j%2], x)
		if j%2 == 1 {
			b.WriteString("\n")
		} else {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}

	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}

	return b.String()
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		w := len(s.ColNames[j])
		if len(u) > 0 && len(u[0]) > w {
			w = len(u[0])
		}
		wx = append(wx, w)
	}

	gap := 10

	// Total width of the table
	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	topw := 0
	for _, x := range s.Top {
		if len(x) > topw {
			topw = len(x)
		}
	}
	if s.tw < gap+2*topw {
		s.tw = gap + 2*topw
	}

	var buf strings.Builder

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title + "\n")

	buf.WriteString(s.line("="))
	if len(s.Top) > 0 {
		buf.WriteString(s.top(gap))
		buf.WriteString(s.line("-"))
	}

	for j, c := range s.ColNames {
		fmt.Fprintf(&buf, "%*s", wx[j], c)
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	if len(tab) > 0 {
		for i := range tab[0] {
			for j := range tab {
				fmt.Fprintf(&buf, "%*s", wx[j], tab[j][i])
			}
			buf.WriteString("\n")
		}
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
