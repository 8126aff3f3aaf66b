package mixed

import (
	"fmt"

	"github.com/kshedden/mixedsmooth/statmodel"
)

// MixedSummary summarizes a fitted linear mixed model.
type MixedSummary struct {

	// The model
	model *MixedModel

	// The results structure
	results *MixedResults

	// Notes on the fit, displayed below the table
	messages []string
}

// Summary returns a summary of the fitted model, which can be displayed
// using its String method.
func (rslt *MixedResults) Summary() *MixedSummary {

	model := rslt.Model().(*MixedModel)

	var msg []string
	if nf := rslt.opt.NumericalFailures; nf > 0 {
		msg = append(msg, fmt.Sprintf("%d of %d likelihood evaluations were numerically invalid",
			nf, rslt.opt.FuncEvaluations))
	}

	return &MixedSummary{
		model:    model,
		results:  rslt,
		messages: msg,
	}
}

// String returns a string representation of a summary table for the model.
func (ms *MixedSummary) String() string {

	rslt := ms.results
	model := ms.model

	sum := &statmodel.SummaryTable{
		Msg: ms.messages,
	}

	sum.Title = "Linear mixed model analysis"

	sum.Top = append(sum.Top, fmt.Sprintf("Sample size:    %10d", model.NumObs()))
	sum.Top = append(sum.Top, fmt.Sprintf("Groups:         %10d", model.NumGroups()))
	sum.Top = append(sum.Top, fmt.Sprintf("Likelihood:     %10s", model.Form()))
	sum.Top = append(sum.Top, fmt.Sprintf("Log-likelihood: %10.3f", rslt.LogLike()))
	sum.Top = append(sum.Top, fmt.Sprintf("Group SD (tau): %10.4f", rslt.Tau()))
	sum.Top = append(sum.Top, fmt.Sprintf("Residual SD:    %10.4f", rslt.Sigma()))

	if rslt.StdErr() != nil {
		sum.ColNames = []string{"Variable   ", "Coefficient", "SE", "LCB", "UCB", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.FmtStrings, statmodel.FmtFloats, statmodel.FmtFloats,
			statmodel.FmtFloats, statmodel.FmtFloats, statmodel.FmtFloats, statmodel.FmtFloats}

		var lcb, ucb []float64
		for j, pa := range rslt.Params() {
			lcb = append(lcb, pa-2*rslt.StdErr()[j])
			ucb = append(ucb, pa+2*rslt.StdErr()[j])
		}
		sum.Cols = []interface{}{rslt.Names(), rslt.Params(), rslt.StdErr(), lcb, ucb,
			rslt.ZScores(), rslt.PValues()}
	} else {
		sum.ColNames = []string{"Variable   ", "Coefficient"}
		sum.ColFmt = []statmodel.Fmter{statmodel.FmtStrings, statmodel.FmtFloats}
		sum.Cols = []interface{}{rslt.Names(), rslt.Params()}
	}

	if se := rslt.ThetaStdErr(); se != nil {
		sum.Msg = append(sum.Msg, fmt.Sprintf("SE(log tau) = %.4f, SE(log sigma) = %.4f", se[0], se[1]))
	}

	if !rslt.Converged() {
		msg := fmt.Sprintf("The optimizer did not converge, status: %s", rslt.Status())
		sum.Msg = append(sum.Msg, msg)
	}

	return sum.String()
}

// RandomEffectsTable returns a table of the predicted random effects.
func (rslt *MixedResults) RandomEffectsTable() string {

	model := rslt.Model().(*MixedModel)

	sum := &statmodel.SummaryTable{
		Title:    "Predicted random effects",
		ColNames: []string{"Group    ", "Prediction"},
		ColFmt:   []statmodel.Fmter{statmodel.FmtStrings, statmodel.FmtFloats},
		Cols:     []interface{}{model.groupNames, rslt.ranef},
	}

	return sum.String()
}
