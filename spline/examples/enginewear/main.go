package main

// Penalized regression splines for engine wear against engine size.
//
// The smoothing parameter is chosen in two ways: by generalized cross
// validation, and by maximum likelihood after writing the spline as a
// linear mixed model.  The two fits are printed and plotted.

import (
	"flag"
	"fmt"
	"image/color"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kshedden/mixedsmooth/datasets"
	"github.com/kshedden/mixedsmooth/spline"
)

func main() {

	nknots := flag.Int("knots", 7, "number of interior knots")
	out := flag.String("out", "enginewear.png", "file for the plot")
	verbose := flag.Bool("verbose", false, "log the progress of the fit")
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

	ds := datasets.Engine()
	size, err := ds.Get("size")
	if err != nil {
		panic(err)
	}
	wear, err := ds.Get("wear")
	if err != nil {
		panic(err)
	}

	x, err := spline.Rescale(size)
	if err != nil {
		panic(err)
	}

	knots := spline.EvenKnots(*nknots)
	design := spline.DesignMatrix(x, knots)
	pen := spline.Penalty(knots)

	// Smoothing by GCV
	lamGCV, err := spline.SelectLambda(wear, design, pen, 1e-8, 10)
	if err != nil {
		panic(err)
	}
	coeffGCV, err := spline.PenalizedFit(wear, design, pen, lamGCV)
	if err != nil {
		panic(err)
	}
	gcv, err := spline.GCV(wear, design, pen, lamGCV)
	if err != nil {
		panic(err)
	}

	// Smoothing by maximum likelihood
	config := spline.DefaultSmoothConfig()
	config.Log = log
	rslt, err := spline.FitMixed(wear, x, knots, config)
	if err != nil {
		panic(err)
	}

	fmt.Printf("GCV:         lambda=%12.6g  score=%8.5f\n", lamGCV, gcv)
	fmt.Printf("Mixed model: lambda=%12.6g  tau=%8.5f  sigma=%8.5f  converged=%v\n\n",
		rslt.Lambda, rslt.Mixed.Tau(), rslt.Mixed.Sigma(), rslt.Mixed.Converged())
	fmt.Println(rslt.Mixed.Summary().String())

	// Evaluate both fits on a grid
	mn, mx := floats.Min(size), floats.Max(size)
	grid := make([]float64, 100)
	floats.Span(grid, 0, 1)
	gdes := spline.DesignMatrix(grid, knots)
	gr, _ := gdes.Dims()

	fgcv := make(plotter.XYs, gr)
	fmix := make(plotter.XYs, gr)
	pmix := rslt.Predict(grid)
	for i, g := range grid {
		var f float64
		for j, c := range coeffGCV {
			f += gdes.At(i, j) * c
		}
		sz := mn + g*(mx-mn)
		fgcv[i] = plotter.XY{X: sz, Y: f}
		fmix[i] = plotter.XY{X: sz, Y: pmix[i]}
	}

	pts := make(plotter.XYs, len(size))
	for i := range size {
		pts[i] = plotter.XY{X: size[i], Y: wear[i]}
	}

	if err := makePlot(pts, fgcv, fmix, *out); err != nil {
		panic(err)
	}
}

func makePlot(pts, fgcv, fmix plotter.XYs, fname string) error {

	p := plot.New()
	p.Title.Text = "Engine wear"
	p.X.Label.Text = "Size"
	p.Y.Label.Text = "Wear"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}

	l1, err := plotter.NewLine(fgcv)
	if err != nil {
		return err
	}
	l1.Color = color.RGBA{R: 200, A: 255}

	l2, err := plotter.NewLine(fmix)
	if err != nil {
		return err
	}
	l2.Color = color.RGBA{B: 200, A: 255}
	l2.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(sc, l1, l2)
	p.Legend.Add("GCV", l1)
	p.Legend.Add("Mixed model", l2)

	return p.Save(5*vg.Inch, 4*vg.Inch, fname)
}
