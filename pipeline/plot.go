package pipeline

import (
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// SavePredictionPlot writes a predicted-versus-actual scatter of the training
// and test rows with the identity line. The image format follows the file
// extension (png, svg, pdf, ...).
func SavePredictionPlot(path string, trainTrue, trainPred, testTrue, testPred *mat.VecDense) error {
	p := plot.New()
	p.Title.Text = "Predicted vs actual price"
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	p.Add(plotter.NewGrid())

	lo, hi := math.Inf(1), math.Inf(-1)
	series := []struct {
		name       string
		yTrue, yPr *mat.VecDense
		color      color.Color
		shape      draw.GlyphDrawer
	}{
		{"train", trainTrue, trainPred, color.RGBA{R: 31, G: 119, B: 180, A: 255}, draw.CircleGlyph{}},
		{"test", testTrue, testPred, color.RGBA{R: 255, G: 127, B: 14, A: 255}, draw.TriangleGlyph{}},
	}
	for _, s := range series {
		if s.yTrue.Len() != s.yPr.Len() {
			return errors.NewDimensionError("SavePredictionPlot("+s.name+")", s.yTrue.Len(), s.yPr.Len(), 0)
		}
		pts := make(plotter.XYs, s.yTrue.Len())
		for i := range pts {
			pts[i].X = s.yTrue.AtVec(i)
			pts[i].Y = s.yPr.AtVec(i)
			lo = math.Min(lo, math.Min(pts[i].X, pts[i].Y))
			hi = math.Max(hi, math.Max(pts[i].X, pts[i].Y))
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrapf(err, "plot %s points", s.name)
		}
		sc.GlyphStyle.Color = s.color
		sc.GlyphStyle.Shape = s.shape
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(s.name, sc)
	}

	identity := plotter.NewFunction(func(x float64) float64 { return x })
	identity.Color = color.Gray{Y: 128}
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(identity)
	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.NewIOError("SavePredictionPlot", path, err)
	}
	return nil
}
