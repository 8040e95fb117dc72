package sensormodel

import "math"

// DefaultVacancyLevels is the resolution of the vacancy table.
const DefaultVacancyLevels = 1000

// VacancyTable precomputes min + (max-min) * exp(-f²) for f in [0, 1], the
// vacancy strength at fractional position f between the camera and the
// start of the occupied region.
type VacancyTable struct {
	min, max float64
	values   []float64
}

// NewVacancyTable builds the table. minProb and maxProb bound the vacancy
// strength and must satisfy 0 <= min <= max <= 0.5.
func NewVacancyTable(minProb, maxProb float64, levels int) *VacancyTable {
	if levels < 2 {
		levels = 2
	}
	t := &VacancyTable{min: minProb, max: maxProb, values: make([]float64, levels)}
	for i := range t.values {
		f := float64(i) / float64(levels-1)
		t.values[i] = minProb + (maxProb-minProb)*math.Exp(-f*f)
	}
	return t
}

// Strength returns the table value for fraction f, clamped to [0, 1].
func (t *VacancyTable) Strength(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return t.values[int(fraction*float64(len(t.values)-1))]
}

// Probability returns the centre-axis probability for a vacancy sample:
// 0.5 - strength/steps. Long vacancy walks contribute little per cell.
func (t *VacancyTable) Probability(fraction float64, steps int) float64 {
	if steps < 1 {
		steps = 1
	}
	return 0.5 - t.Strength(fraction)/float64(steps)
}
