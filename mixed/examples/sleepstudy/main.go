package main

// Random intercept models for the sleep deprivation study.
//
// Reaction time is regressed on days of sleep deprivation, with a
// random intercept for each subject.  The model is fit twice, once
// with each form of the likelihood.  Every subject is observed on the
// same days, so the two fits agree.

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/kshedden/mixedsmooth/datasets"
	"github.com/kshedden/mixedsmooth/mixed"
)

func fit(form mixed.LikelihoodForm, log *zap.Logger) *mixed.MixedResults {

	config := mixed.DefaultMixedConfig()
	config.Form = form
	config.Log = log

	model, err := mixed.NewMixedModelFromData(datasets.Sleepstudy(), "Reaction", "Subject", []string{"Days"}, config)
	if err != nil {
		panic(err)
	}

	rslt, err := model.Fit()
	if err != nil {
		panic(err)
	}

	return rslt
}

func main() {

	verbose := flag.Bool("verbose", false, "log the progress of the fits")
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		defer log.Sync()
	}

	var results []*mixed.MixedResults
	for _, form := range []mixed.LikelihoodForm{mixed.Decorrelated, mixed.Multivariate} {
		rslt := fit(form, log)
		results = append(results, rslt)
		fmt.Println(rslt.Summary().String() + "\n")
	}

	rslt := results[0]
	fmt.Println(rslt.RandomEffectsTable())

	pr := mixed.NewProfiler(rslt, mixed.ProfileTau)
	lo, hi := pr.ConfInt(0.95)
	fmt.Printf("95%% profile interval for tau:   %8.3f %8.3f\n", lo, hi)

	pr = mixed.NewProfiler(rslt, mixed.ProfileSigma)
	lo, hi = pr.ConfInt(0.95)
	fmt.Printf("95%% profile interval for sigma: %8.3f %8.3f\n", lo, hi)

	fmt.Printf("\nDifference in log-likelihood between the two forms: %g\n",
		results[0].LogLike()-results[1].LogLike())
}
