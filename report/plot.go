package report

import (
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/lurcv/crossval"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// RMSEHistogram saves a histogram of the fold RMSEs to path; the image format
// follows the file extension. bins <= 0 uses ⌈√n⌉ bins.
func RMSEHistogram(path string, s *crossval.Summary, bins int) error {
	var values plotter.Values
	for _, v := range s.Values("rmse") {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return errors.NewInsufficientDataError("report.RMSEHistogram", 1, 0)
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Sqrt(float64(len(values)))))
	}

	p := plot.New()
	p.Title.Text = "Fold RMSE (" + s.Strategy + ")"
	p.X.Label.Text = "RMSE"
	p.Y.Label.Text = "folds"

	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return errors.Wrap(err, "failed to build histogram")
	}
	h.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 180}
	p.Add(h, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}
