package visualiser

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/stereogrid/internal/stereo/grid"
	"github.com/banshee-data/stereogrid/internal/stereo/metagrid"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// HeightChart builds a top-down scatter of the grid's height map: one point
// per column with a cell at or above threshold, coloured by height.
func HeightChart(g *grid.OccupancyGrid, threshold float64, title string) *charts.Scatter {
	hm := g.HeightMap(threshold)
	cell := g.CellSizeMM()
	half := float64(g.DimensionCells()) * cell / 2
	centre := g.Position()

	data := make([]opts.ScatterData, 0)
	maxHeight := 0.0
	for y, row := range hm {
		for x, h := range row {
			if h < 0 {
				continue
			}
			wx := centre.X - half + (float64(x)+0.5)*cell
			wy := centre.Y - half + (float64(y)+0.5)*cell
			data = append(data, opts.ScatterData{Value: []interface{}{wx, wy, h}})
			if h > maxHeight {
				maxHeight = h
			}
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("centre=(%.0f, %.0f) columns=%d threshold=%.2f", centre.X, centre.Y, len(data), threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: centre.X - half, Max: centre.X + half, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: centre.Y - half, Max: centre.Y + half, Name: "Y (mm)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxHeight),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("height", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

// TrajectoryChart plots the recorded positions against the localisation
// corrected ones.
func TrajectoryChart(entries []metagrid.LogEntry) *charts.Scatter {
	raw := make([]opts.ScatterData, 0, len(entries))
	corrected := make([]opts.ScatterData, 0, len(entries))
	for _, e := range entries {
		raw = append(raw, opts.ScatterData{Value: []interface{}{e.Position.X, e.Position.Y}})
		if e.Matched {
			c := e.Corrected()
			corrected = append(corrected, opts.ScatterData{Value: []interface{}{c.X, c.Y}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("samples=%d matched=%d", len(raw), len(corrected))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (mm)", NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("recorded", raw, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("corrected", corrected, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

// RenderReport writes an HTML page with a height chart per grid and, if
// entries is non-empty, the trajectory.
func RenderReport(w io.Writer, grids []*grid.OccupancyGrid, entries []metagrid.LogEntry, threshold float64) error {
	page := components.NewPage()
	page.PageTitle = "stereogrid"
	for i, g := range grids {
		page.AddCharts(HeightChart(g, threshold, fmt.Sprintf("Grid %d", i)))
	}
	if len(entries) > 0 {
		page.AddCharts(TrajectoryChart(entries))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
