package experiment

import (
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
)

// PlotScores saves a bar chart of the mean CV score of every candidate to
// path. The image format follows the file extension.
func PlotScores(path, title string, res *model_selection.CVResults) error {
	if res == nil || len(res.MeanTestScore) == 0 {
		return errors.NewValueError("PlotScores", "no cross-validation results")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Candidate"
	p.Y.Label.Text = "Mean CV accuracy"
	p.Y.Min, p.Y.Max = 0, 1

	bars, err := plotter.NewBarChart(plotter.Values(res.MeanTestScore), vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = color.RGBA{R: 50, G: 50, B: 255, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	labels := make([]string, len(res.MeanTestScore))
	for i, rank := range res.RankTestScore {
		labels[i] = strconv.Itoa(i)
		if rank == 1 {
			labels[i] += "*"
		}
	}
	p.NominalX(labels...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	width := vg.Length(len(labels))*vg.Points(24) + 2*vg.Inch
	if err := p.Save(width, 3*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
