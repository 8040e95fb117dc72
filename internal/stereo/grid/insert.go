package grid

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// InsertMode selects whether Insert fuses evidence or only scores it.
type InsertMode int

const (
	// Mapping adds the ray's log-odds into the grid.
	Mapping InsertMode = iota
	// LocaliseOnly scores the ray against existing cells without mutating them.
	LocaliseOnly
)

func (m InsertMode) String() string {
	switch m {
	case Mapping:
		return "mapping"
	case LocaliseOnly:
		return "localise"
	default:
		return "unknown"
	}
}

// InsertResult summarises one or more insertions.
type InsertResult struct {
	// OccupiedDelta is the change in the number of cells with positive
	// log-odds. Mapping only.
	OccupiedDelta int
	// NewCells counts cells that received their first evidence. Mapping only.
	NewCells int
	// Score is the summed matching log-odds, or NoOccupancyEvidence when no
	// sample landed on a cell with evidence. Localisation only.
	Score float64
}

func (r *InsertResult) addScore(s float64) {
	if r.Score == sensormodel.NoOccupancyEvidence {
		r.Score = s
		return
	}
	r.Score += s
}

func (r *InsertResult) merge(o InsertResult) {
	r.OccupiedDelta += o.OccupiedDelta
	r.NewCells += o.NewCells
	if o.Score != sensormodel.NoOccupancyEvidence {
		r.addScore(o.Score)
	}
}

func emptyResult() InsertResult {
	return InsertResult{Score: sensormodel.NoOccupancyEvidence}
}

// RayWidthCells converts a ray's lateral extent in millimetres to a half
// width in cells.
func (g *OccupancyGrid) RayWidthCells(widthMM float64) int {
	return int(math.Round(widthMM / (2 * g.cellSize)))
}

// RayWidthAt returns the half width in cells at step of steps for a
// diamond that grows from 0 to rayWidth at widest, then shrinks back to 0
// at steps. With tail set the width holds at rayWidth past widest.
func RayWidthAt(step, steps int, widest float64, rayWidth int, tail bool) int {
	if steps <= 0 || rayWidth <= 0 {
		return 0
	}
	s := float64(step)
	if s <= widest {
		if widest <= 0 {
			return 0
		}
		return int(float64(rayWidth)*s/widest + 0.5)
	}
	if tail {
		return rayWidth
	}
	remaining := float64(steps) - widest
	if remaining <= 0 {
		return 0
	}
	w := int(float64(rayWidth)*(float64(steps)-s)/remaining + 0.5)
	if w < 0 {
		return 0
	}
	return w
}

// Insert applies one evidence ray observed by cam: the occupied region
// from Vertices[0] to Vertices[1], then the vacancy regions from the left
// and (unless turbo mode is on) right optical centres to Vertices[0].
func (g *OccupancyGrid) Insert(ray evidence.Ray, cam geometry.CameraPose, mode InsertMode) InsertResult {
	res := emptyResult()
	rayWidth := g.RayWidthCells(ray.Width)

	g.walk(&ray, ray.Vertices[0], ray.Vertices[1], ray.ObservedFrom, rayWidth, true, mode, &res)
	g.walk(&ray, cam.Left, ray.Vertices[0], cam.Left, rayWidth, false, mode, &res)
	if !g.turbo {
		g.walk(&ray, cam.Right, ray.Vertices[0], cam.Right, rayWidth, false, mode, &res)
	}

	tracef("%s ray disparity=%.1f uncertainty=%.0fmm width=%d delta=%d score=%.3f",
		mode, ray.Disparity, ray.Uncertainty, rayWidth, res.OccupiedDelta, res.Score)
	return res
}

// walk rasterises one pass. The lateral spread is applied along the
// horizontal axis perpendicular to the dominant axis of travel. The walk
// stops at the first sample within rayWidth cells of a horizontal edge,
// outside the vertical extent, or beyond the mapping range.
func (g *OccupancyGrid) walk(ray *evidence.Ray, from, to, observer r3.Vector, rayWidth int, occupied bool, mode InsertMode, res *InsertResult) {
	d := to.Sub(from)
	ax, ay, az := math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)
	longest := ax
	spreadX := false
	if ay > longest {
		longest = ay
		spreadX = true
	}
	if az > longest {
		longest = az
		spreadX = true
	}

	steps := int(longest / g.cellSize)
	if steps < 1 {
		steps = 1
	}
	widest := float64(steps)
	tail := false
	if occupied {
		widest = ray.FattestPoint * float64(steps)
		tail = g.model.Rays.InfiniteTailAt(ray.Disparity)
	}
	maxRangeSq := g.maxRange * g.maxRange * g.cellSize * g.cellSize

	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps)
		p := from.Add(d.Mul(frac))
		cx, cy, cz, _ := g.CellIndex(p)
		if cx < rayWidth || cx >= g.dim-rayWidth || cy < rayWidth || cy >= g.dim-rayWidth {
			break
		}
		if cz < 0 || cz >= g.dimVert {
			break
		}
		if p.Sub(observer).Norm2() > maxRangeSq {
			break
		}

		var centre float64
		if occupied {
			centre = g.model.Rays.CentreProbability(ray.Disparity, i, steps)
		} else {
			centre = g.model.Vacancy.Probability(frac, steps)
		}

		w := RayWidthAt(i, steps, widest, rayWidth, tail)
		for off := -w; off <= w; off++ {
			prob := 0.5 + (centre-0.5)*g.model.Gaussian.At(off, w)
			x, y := cx, cy
			if spreadX {
				x += off
			} else {
				y += off
			}
			if mode == Mapping {
				g.deposit(x, y, cz, prob, occupied, ray.Colour, res)
			} else if m, ok := g.matchingProbability(x, y, cz, prob); ok {
				res.addScore(m)
			}
		}
	}
}

// deposit adds the log-odds of prob to a cell, allocating its column on
// first use. The occupied pass also blends the ray colour in.
func (g *OccupancyGrid) deposit(x, y, z int, prob float64, occupied bool, colour [3]uint8, res *InsertResult) {
	idx := y*g.dim + x
	col := g.columns[idx]
	if col == nil {
		col = newColumn(g.dimVert)
		g.columns[idx] = col
	}
	c := &col[z]

	lo := float32(g.model.LogOdds.LogOdds(prob))
	wasOccupied := false
	if c.hasEvidence() {
		wasOccupied = c.logOdds > 0
		c.logOdds += lo
	} else {
		c.logOdds = lo
		res.NewCells++
	}
	switch isOccupied := c.logOdds > 0; {
	case isOccupied && !wasOccupied:
		res.OccupiedDelta++
	case !isOccupied && wasOccupied:
		res.OccupiedDelta--
	}

	if occupied {
		if !c.coloured {
			c.colour = colour
			c.coloured = true
		} else {
			for i := range c.colour {
				c.colour[i] = uint8((int(c.colour[i]) + int(colour[i])) / 2)
			}
		}
	}
}

// matchingProbability combines the ray's probability with an existing
// cell's as p*q + (1-p)*(1-q), in log-odds. Cells without evidence do not
// contribute.
func (g *OccupancyGrid) matchingProbability(x, y, z int, prob float64) (float64, bool) {
	col := g.columns[y*g.dim+x]
	if col == nil || !col[z].hasEvidence() {
		return 0, false
	}
	q := g.model.LogOdds.Probability(float64(col[z].logOdds))
	return g.model.LogOdds.LogOdds(prob*q + (1-prob)*(1-q)), true
}

// AddObservation inserts every ray, raysPerCamera[i] having been observed
// by cams[i]. In localise-only mode the per-ray scores are summed; the
// result's Score is NoOccupancyEvidence if no ray matched.
func (g *OccupancyGrid) AddObservation(raysPerCamera [][]evidence.Ray, cams []geometry.CameraPose, localiseOnly bool) InsertResult {
	mode := Mapping
	if localiseOnly {
		mode = LocaliseOnly
	}
	total := emptyResult()
	for i, rays := range raysPerCamera {
		if i >= len(cams) {
			opsf("observation has rays for camera %d but only %d camera poses", i, len(cams))
			break
		}
		for _, r := range rays {
			total.merge(g.Insert(r, cams[i], mode))
		}
	}
	return total
}
