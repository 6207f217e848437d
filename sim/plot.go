package sim

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bhr3310/motioncore/spatialmath"
)

var (
	plannedColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	drivenColor    = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	estimatedColor = color.RGBA{R: 40, G: 90, B: 200, A: 255}
)

func toXYs(poses []spatialmath.Pose2d) plotter.XYs {
	xys := make(plotter.XYs, len(poses))
	for i, p := range poses {
		xys[i].X = p.X()
		xys[i].Y = p.Y()
	}
	return xys
}

// Plot draws the planned, driven and estimated paths of a run onto one field plot.
func Plot(res *Result, title string) (*plot.Plot, error) {
	if res == nil || len(res.Planned) == 0 {
		return nil, errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (in)"
	p.Y.Label.Text = "y (in)"
	p.Add(plotter.NewGrid())

	for _, series := range []struct {
		name   string
		poses  []spatialmath.Pose2d
		color  color.Color
		dashed bool
	}{
		{"planned", res.Planned, plannedColor, true},
		{"driven", res.Driven, drivenColor, false},
		{"estimated", res.Estimated, estimatedColor, false},
	} {
		if len(series.poses) == 0 {
			continue
		}
		line, err := plotter.NewLine(toXYs(series.poses))
		if err != nil {
			return nil, errors.Wrapf(err, "plotting %s path", series.name)
		}
		line.Color = series.color
		line.Width = vg.Points(1.5)
		if series.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// SavePlot writes the plot of a run to file; the format follows the file extension.
func SavePlot(res *Result, title, file string) error {
	p, err := Plot(res, title)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, file)
}
