package grid

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// Voxel is an occupied cell prepared for display.
type Voxel struct {
	X, Y, Z     int
	Position    r3.Vector
	Probability float64
	Colour      [3]uint8
}

// Stats summarises grid contents.
type Stats struct {
	AllocatedColumns int
	EvidenceCells    int
	OccupiedCells    int
}

// Stats counts allocated columns and cells.
func (g *OccupancyGrid) Stats() Stats {
	var s Stats
	for _, col := range g.columns {
		if col == nil {
			continue
		}
		s.AllocatedColumns++
		for i := range col {
			if col[i].hasEvidence() {
				s.EvidenceCells++
				if col[i].logOdds > 0 {
					s.OccupiedCells++
				}
			}
		}
	}
	return s
}

// OccupiedVoxels returns every cell whose probability is at least
// threshold, x fastest then y then z.
func (g *OccupancyGrid) OccupiedVoxels(threshold float64) []Voxel {
	var out []Voxel
	for y := 0; y < g.dim; y++ {
		for x := 0; x < g.dim; x++ {
			col := g.columns[y*g.dim+x]
			if col == nil {
				continue
			}
			for z := range col {
				if !col[z].hasEvidence() {
					continue
				}
				p := sensormodel.LogOddsToProbability(float64(col[z].logOdds))
				if p < threshold {
					continue
				}
				out = append(out, Voxel{
					X: x, Y: y, Z: z,
					Position:    g.CellCentre(x, y, z),
					Probability: p,
					Colour:      col[z].colour,
				})
			}
		}
	}
	return out
}

// HeightMap returns, per column, the height in mm above the grid floor of
// the highest cell with probability at least threshold, or -1 where no
// cell qualifies. Indexed [y][x].
func (g *OccupancyGrid) HeightMap(threshold float64) [][]float64 {
	out := make([][]float64, g.dim)
	for y := range out {
		out[y] = make([]float64, g.dim)
		for x := range out[y] {
			out[y][x] = -1
			col := g.columns[y*g.dim+x]
			for z := len(col) - 1; z >= 0; z-- {
				if col[z].hasEvidence() && sensormodel.LogOddsToProbability(float64(col[z].logOdds)) >= threshold {
					out[y][x] = (float64(z) + 1) * g.cellSize
					break
				}
			}
		}
	}
	return out
}

// ColumnSlice returns the horizontal slice at vertical index z as
// probabilities indexed [y][x], NoOccupancyEvidence where untouched.
func (g *OccupancyGrid) ColumnSlice(z int) [][]float64 {
	out := make([][]float64, g.dim)
	for y := range out {
		out[y] = make([]float64, g.dim)
		for x := range out[y] {
			out[y][x] = g.GetCellProbability(x, y, z)
		}
	}
	return out
}
