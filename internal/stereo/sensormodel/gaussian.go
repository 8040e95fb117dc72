package sensormodel

import "gonum.org/v1/gonum/stat/distuv"

// DefaultGaussianLevels is the number of entries in the lateral falloff
// table. Lateral offsets are keyed as |offset| * (levels-1) / halfWidth.
const DefaultGaussianLevels = 10

// HalfGaussian is a precomputed falloff from the ray axis outwards,
// spanning zero to three standard deviations and normalised so the axis
// value is 1.
type HalfGaussian struct {
	values []float64
}

// NewHalfGaussian builds a falloff table with the given number of levels.
func NewHalfGaussian(levels int) *HalfGaussian {
	if levels < 2 {
		levels = 2
	}
	n := distuv.Normal{Mu: 0, Sigma: 1}
	peak := n.Prob(0)
	g := &HalfGaussian{values: make([]float64, levels)}
	for i := range g.values {
		x := 3 * float64(i) / float64(levels-1)
		g.values[i] = n.Prob(x) / peak
	}
	return g
}

// At returns the attenuation for an integer lateral offset (in cells) from
// the ray axis when the ray is halfWidth cells wide at this step.
func (g *HalfGaussian) At(offset, halfWidth int) float64 {
	if halfWidth <= 0 {
		return g.values[0]
	}
	if offset < 0 {
		offset = -offset
	}
	i := offset * (len(g.values) - 1) / halfWidth
	if i >= len(g.values) {
		i = len(g.values) - 1
	}
	return g.values[i]
}
