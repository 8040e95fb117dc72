package sensormodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// scratchColumns is the lateral resolution of the simulation grid.
	scratchColumns = 41
	// trimFraction discards the low-density ends of a profile.
	trimFraction = 1e-3
)

// RayModel holds the occupied-region probability curve for every integer
// disparity. Curves are indexed from the near edge of the occupied region
// and each has unit mass.
type RayModel struct {
	MinDisparity int
	MaxDisparity int

	// Probability[d] is the curve for disparity d. Entries below
	// MinDisparity share the MinDisparity curve.
	Probability [][]float64
	// InfiniteTail[d] is set when the simulated overlap ran past the
	// maximum range so the occupied width does not taper.
	InfiniteTail []bool
	// RangeMM[d] is the nominal feature range for disparity d.
	RangeMM []float64

	peak float64
}

// RayModelParams configures BuildRayModel.
type RayModelParams struct {
	Camera          StereoCamera
	CellSizeMM      float64
	MaxRangeMM      float64
	MinDisparity    int
	MaxDisparity    int
	SmoothingPasses int
	SmoothingRadius int
}

// BuildRayModel simulates, for every disparity, two Gaussian angular
// uncertainty rays from the left and right optical centres on a lateral ×
// range scratch grid. The range column with the largest summed density
// becomes that disparity's profile, trimmed to its significant span,
// smoothed and normalised.
func BuildRayModel(p RayModelParams) (*RayModel, error) {
	if err := p.Camera.Validate(); err != nil {
		return nil, fmt.Errorf("ray model camera: %w", err)
	}
	if p.CellSizeMM <= 0 || p.MaxRangeMM < p.CellSizeMM {
		return nil, fmt.Errorf("ray model needs cell size > 0 and max range >= cell size, got %f/%f", p.CellSizeMM, p.MaxRangeMM)
	}
	if p.MinDisparity < 1 || p.MaxDisparity < p.MinDisparity {
		return nil, fmt.Errorf("invalid disparity range [%d, %d]", p.MinDisparity, p.MaxDisparity)
	}

	m := &RayModel{
		MinDisparity: p.MinDisparity,
		MaxDisparity: p.MaxDisparity,
		Probability:  make([][]float64, p.MaxDisparity+1),
		InfiniteTail: make([]bool, p.MaxDisparity+1),
		RangeMM:      make([]float64, p.MaxDisparity+1),
	}

	rows := int(math.Ceil(p.MaxRangeMM / p.CellSizeMM))
	scratch := make([][]float64, scratchColumns)
	for i := range scratch {
		scratch[i] = make([]float64, rows)
	}

	for d := p.MinDisparity; d <= p.MaxDisparity; d++ {
		curve, tail := simulateDisparity(p, float64(d), scratch)
		smooth(curve, p.SmoothingPasses, p.SmoothingRadius)
		if sum := floats.Sum(curve); sum > 0 {
			floats.Scale(1/sum, curve)
		}
		m.Probability[d] = curve
		m.InfiniteTail[d] = tail
		m.RangeMM[d] = p.Camera.RangeMM(float64(d))
		if pk := floats.Max(curve); pk > m.peak {
			m.peak = pk
		}
		tracef("ray model disparity=%d steps=%d tail=%t", d, len(curve), tail)
	}
	for d := 0; d < p.MinDisparity; d++ {
		m.Probability[d] = m.Probability[p.MinDisparity]
		m.InfiniteTail[d] = true
		m.RangeMM[d] = p.Camera.RangeMM(float64(d))
	}
	if m.peak <= 0 {
		return nil, fmt.Errorf("ray model has no density for disparities [%d, %d]", p.MinDisparity, p.MaxDisparity)
	}
	diagf("built ray model: disparities %d..%d, %d range rows, peak %.5f", p.MinDisparity, p.MaxDisparity, rows, m.peak)
	return m, nil
}

// simulateDisparity fills scratch with the joint density of the two rays
// and returns the trimmed profile of the densest range column.
func simulateDisparity(p RayModelParams, disparity float64, scratch [][]float64) ([]float64, bool) {
	cam := p.Camera
	half := cam.BaselineMM / 2
	target := cam.RangeMM(disparity)
	sigma := cam.AngularSigma()

	thetaL := math.Atan2(half, target)
	thetaR := -thetaL
	rows := len(scratch[0])

	best, bestSum := 0, -1.0
	for c := range scratch {
		lateral := -half + cam.BaselineMM*float64(c)/float64(scratchColumns-1)
		col := scratch[c]
		for r := range col {
			y := (float64(r) + 0.5) * p.CellSizeMM
			dl := (math.Atan2(lateral+half, y) - thetaL) / sigma
			dr := (math.Atan2(lateral-half, y) - thetaR) / sigma
			col[r] = math.Exp(-0.5 * (dl*dl + dr*dr))
		}
		if s := floats.Sum(col); s > bestSum {
			best, bestSum = c, s
		}
	}

	col := scratch[best]
	peak := floats.Max(col)
	if peak <= 0 {
		return []float64{1}, true
	}
	first, last := -1, -1
	for r, v := range col {
		if v >= peak*trimFraction {
			if first < 0 {
				first = r
			}
			last = r
		}
	}
	curve := make([]float64, last-first+1)
	copy(curve, col[first:last+1])
	return curve, last == rows-1
}

// smooth applies a triangular kernel of the given radius in place.
func smooth(curve []float64, passes, radius int) {
	if radius <= 0 || len(curve) < 3 {
		return
	}
	if radius > len(curve)/2 {
		radius = len(curve) / 2
	}
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		kernel[i] = float64(radius + 1 - abs(i-radius))
	}
	tmp := make([]float64, len(curve))
	for pass := 0; pass < passes; pass++ {
		for i := range curve {
			var sum, weight float64
			for k, w := range kernel {
				j := i + k - radius
				if j < 0 || j >= len(curve) {
					continue
				}
				sum += curve[j] * w
				weight += w
			}
			tmp[i] = sum / weight
		}
		copy(curve, tmp)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (m *RayModel) index(disparity float64) int {
	d := int(disparity)
	if d < 0 {
		d = 0
	} else if d > m.MaxDisparity {
		d = m.MaxDisparity
	}
	return d
}

// Curve returns the probability curve used for a disparity.
func (m *RayModel) Curve(disparity float64) []float64 {
	return m.Probability[m.index(disparity)]
}

// InfiniteTailAt reports whether the disparity's occupied region keeps its
// full width beyond the fattest point.
func (m *RayModel) InfiniteTailAt(disparity float64) bool {
	return m.InfiniteTail[m.index(disparity)]
}

// Peak returns the largest curve value over all disparities.
func (m *RayModel) Peak() float64 { return m.peak }

// CentreProbability returns the centre-axis occupancy probability at sample
// step of steps along the occupied region, remapped into [0.5, 1.0].
func (m *RayModel) CentreProbability(disparity float64, step, steps int) float64 {
	curve := m.Curve(disparity)
	if steps < 1 {
		steps = 1
	}
	i := step * (len(curve) - 1) / steps
	if i < 0 {
		i = 0
	} else if i >= len(curve) {
		i = len(curve) - 1
	}
	return 0.5 + 0.5*curve[i]/m.peak
}
