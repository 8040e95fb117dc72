package grid

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// noEvidence is the float32 form of the sentinel stored in cells.
const noEvidence = float32(sensormodel.NoOccupancyEvidence)

type cell struct {
	logOdds  float32
	colour   [3]uint8
	coloured bool
}

func (c *cell) hasEvidence() bool { return c.logOdds != noEvidence }

type column []cell

func newColumn(height int) column {
	col := make(column, height)
	for i := range col {
		col[i].logOdds = noEvidence
	}
	return col
}

// OccupancyGrid is a sparse cubic lattice of occupancy cells centred on a
// movable world position.
type OccupancyGrid struct {
	dim      int
	dimVert  int
	cellSize float64
	maxRange float64 // cells
	turbo    bool

	centre r3.Vector
	origin r3.Vector

	columns []column
	model   *sensormodel.Model
}

// New creates an empty grid centred on the origin.
func New(cfg *Config, model *sensormodel.Model) (*OccupancyGrid, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grid config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	if model == nil {
		return nil, fmt.Errorf("sensor model is nil")
	}
	g := &OccupancyGrid{
		dim:      cfg.DimensionCells,
		dimVert:  cfg.DimensionCellsVertical,
		cellSize: cfg.CellSizeMM,
		maxRange: cfg.MaxMappingRangeMM / cfg.CellSizeMM,
		turbo:    cfg.TurboMode,
		columns:  make([]column, cfg.DimensionCells*cfg.DimensionCells),
		model:    model,
	}
	g.SetPosition(r3.Vector{})
	return g, nil
}

// DimensionCells returns the horizontal extent in cells.
func (g *OccupancyGrid) DimensionCells() int { return g.dim }

// DimensionCellsVertical returns the vertical extent in cells.
func (g *OccupancyGrid) DimensionCellsVertical() int { return g.dimVert }

// CellSizeMM returns the cell size.
func (g *OccupancyGrid) CellSizeMM() float64 { return g.cellSize }

// Model returns the sensor model the grid was built with.
func (g *OccupancyGrid) Model() *sensormodel.Model { return g.model }

// Position returns the world-space centre.
func (g *OccupancyGrid) Position() r3.Vector { return g.centre }

// SetPosition re-anchors the grid on a new world-space centre. Existing
// cells keep their lattice indices, so callers normally Clear first.
func (g *OccupancyGrid) SetPosition(centre r3.Vector) {
	g.centre = centre
	half := g.cellSize / 2
	g.origin = r3.Vector{
		X: centre.X - float64(g.dim)*half,
		Y: centre.Y - float64(g.dim)*half,
		Z: centre.Z - float64(g.dimVert)*half,
	}
}

// Clear drops every column.
func (g *OccupancyGrid) Clear() {
	for i := range g.columns {
		g.columns[i] = nil
	}
}

// Reposition clears the grid and re-anchors it on centre.
func (g *OccupancyGrid) Reposition(centre r3.Vector) {
	g.Clear()
	g.SetPosition(centre)
	diagf("grid repositioned to (%.0f, %.0f, %.0f)", centre.X, centre.Y, centre.Z)
}

// CellIndex returns the lattice indices containing a world position and
// whether they fall inside the grid.
func (g *OccupancyGrid) CellIndex(p r3.Vector) (x, y, z int, ok bool) {
	x = int(math.Floor((p.X - g.origin.X) / g.cellSize))
	y = int(math.Floor((p.Y - g.origin.Y) / g.cellSize))
	z = int(math.Floor((p.Z - g.origin.Z) / g.cellSize))
	ok = x >= 0 && x < g.dim && y >= 0 && y < g.dim && z >= 0 && z < g.dimVert
	return x, y, z, ok
}

// CellCentre returns the world position of a cell centre.
func (g *OccupancyGrid) CellCentre(x, y, z int) r3.Vector {
	return r3.Vector{
		X: g.origin.X + (float64(x)+0.5)*g.cellSize,
		Y: g.origin.Y + (float64(y)+0.5)*g.cellSize,
		Z: g.origin.Z + (float64(z)+0.5)*g.cellSize,
	}
}

func (g *OccupancyGrid) column(x, y int) column {
	if x < 0 || x >= g.dim || y < 0 || y >= g.dim {
		return nil
	}
	return g.columns[y*g.dim+x]
}

// GetCellProbability returns the occupancy probability of one cell, or
// NoOccupancyEvidence if it has never been touched or is out of range.
func (g *OccupancyGrid) GetCellProbability(x, y, z int) float64 {
	col := g.column(x, y)
	if col == nil || z < 0 || z >= g.dimVert || !col[z].hasEvidence() {
		return sensormodel.NoOccupancyEvidence
	}
	return sensormodel.LogOddsToProbability(float64(col[z].logOdds))
}

// GetCellLogOdds returns a cell's raw log-odds, which is the sentinel for
// untouched cells.
func (g *OccupancyGrid) GetCellLogOdds(x, y, z int) float64 {
	col := g.column(x, y)
	if col == nil || z < 0 || z >= g.dimVert || !col[z].hasEvidence() {
		return sensormodel.NoOccupancyEvidence
	}
	return float64(col[z].logOdds)
}

// GetCellColour returns a cell's stored colour and whether it has one.
func (g *OccupancyGrid) GetCellColour(x, y, z int) ([3]uint8, bool) {
	col := g.column(x, y)
	if col == nil || z < 0 || z >= g.dimVert {
		return [3]uint8{}, false
	}
	return col[z].colour, col[z].coloured
}

// GetProbability returns the mean occupancy probability of the column
// containing the world position (x, y), over cells with evidence, or
// NoOccupancyEvidence when the column has none.
func (g *OccupancyGrid) GetProbability(x, y float64) float64 {
	cx, cy, _, _ := g.CellIndex(r3.Vector{X: x, Y: y, Z: g.centre.Z})
	col := g.column(cx, cy)
	if col == nil {
		return sensormodel.NoOccupancyEvidence
	}
	var sum float64
	n := 0
	for i := range col {
		if col[i].hasEvidence() {
			sum += sensormodel.LogOddsToProbability(float64(col[i].logOdds))
			n++
		}
	}
	if n == 0 {
		return sensormodel.NoOccupancyEvidence
	}
	return sum / float64(n)
}

// BetterScore reports whether matching score a beats b. The
// NoOccupancyEvidence sentinel ranks below every real score.
func BetterScore(a, b float64) bool {
	if a == sensormodel.NoOccupancyEvidence {
		return false
	}
	if b == sensormodel.NoOccupancyEvidence {
		return true
	}
	return a > b
}
