// Package visualiser renders diagnostic plots of the sensor model, the
// occupancy grids and localisation runs.
package visualiser

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/stereogrid/internal/stereo/metagrid"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// PlotRayModel draws the occupied-region curve for each disparity against
// range in millimetres and saves it as a PNG.
func PlotRayModel(m *sensormodel.RayModel, cellSizeMM float64, disparities []int, path string) error {
	p := plot.New()
	p.Title.Text = "Ray model"
	p.X.Label.Text = "Range from near edge (mm)"
	p.Y.Label.Text = "Probability density"

	colours := generateColours(len(disparities))
	drawn := 0
	for i, d := range disparities {
		curve := m.Curve(float64(d))
		if len(curve) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(curve))
		for j, v := range curve {
			pts[j] = plotter.XY{X: float64(j) * cellSizeMM, Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colours[i]
		line.Width = vg.Points(1)
		p.Add(line)
		label := fmt.Sprintf("d=%d", d)
		if m.InfiniteTailAt(float64(d)) {
			label += " (tail)"
		}
		p.Legend.Add(label, line)
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("no ray model curves for %v", disparities)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save ray model plot: %w", err)
	}
	return nil
}

// PlotLocalisation writes localisation_score.png and
// localisation_offset.png into dir. Unmatched samples are left out.
// Returns the number of plots written.
func PlotLocalisation(entries []metagrid.LogEntry, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create plot dir: %w", err)
	}

	var score, offX, offY, swaps plotter.XYs
	for _, e := range entries {
		if !e.Matched {
			continue
		}
		x := float64(e.PathIndex)
		score = append(score, plotter.XY{X: x, Y: e.Score})
		offX = append(offX, plotter.XY{X: x, Y: e.Offset.X})
		offY = append(offY, plotter.XY{X: x, Y: e.Offset.Y})
		if e.Swapped {
			swaps = append(swaps, plotter.XY{X: x, Y: e.Score})
		}
	}
	if len(score) == 0 {
		return 0, nil
	}

	pScore := plot.New()
	pScore.Title.Text = "Localisation score"
	pScore.X.Label.Text = "Path sample"
	pScore.Y.Label.Text = "Score (log-odds)"
	line, err := plotter.NewLine(score)
	if err != nil {
		return 0, err
	}
	line.Width = vg.Points(1)
	pScore.Add(line)
	if len(swaps) > 0 {
		sc, err := plotter.NewScatter(swaps)
		if err != nil {
			return 0, err
		}
		sc.Color = color.RGBA{R: 220, A: 255}
		pScore.Add(sc)
		pScore.Legend.Add("grid swap", sc)
	}
	if err := pScore.Save(12*vg.Inch, 5*vg.Inch, filepath.Join(dir, "localisation_score.png")); err != nil {
		return 0, fmt.Errorf("save score plot: %w", err)
	}

	pOff := plot.New()
	pOff.Title.Text = "Localisation offset"
	pOff.X.Label.Text = "Path sample"
	pOff.Y.Label.Text = "Offset (mm)"
	colours := generateColours(2)
	for i, s := range []struct {
		name string
		pts  plotter.XYs
	}{{"x", offX}, {"y", offY}} {
		l, err := plotter.NewLine(s.pts)
		if err != nil {
			return 1, err
		}
		l.Color = colours[i]
		l.Width = vg.Points(1)
		pOff.Add(l)
		pOff.Legend.Add(s.name, l)
	}
	pOff.Legend.Top = true
	if err := pOff.Save(12*vg.Inch, 5*vg.Inch, filepath.Join(dir, "localisation_offset.png")); err != nil {
		return 1, fmt.Errorf("save offset plot: %w", err)
	}
	return 2, nil
}

// generateColours spreads n hues around the colour wheel.
func generateColours(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := range out {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
