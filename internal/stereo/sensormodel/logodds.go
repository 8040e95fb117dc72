package sensormodel

import "math"

// NoOccupancyEvidence marks a cell log-odds value or a matching score that
// has never received evidence. It is not a valid probability or log-odds
// value and must be checked before any arithmetic.
const NoOccupancyEvidence = 99999999.0

const (
	defaultLogOddsLevels     = 10000
	defaultLogOddsLimit      = 10.0
	defaultLogOddsResolution = 0.001
)

// LogOddsTable converts between probability and log-odds without calling
// math.Log/math.Exp in the ray insertion loop.
type LogOddsTable struct {
	levels     int
	forward    []float64 // index = round(p * levels)
	limit      float64
	resolution float64
	inverse    []float64 // index = round((lo + limit) / resolution)
}

// NewLogOddsTable builds a table with the given probability quantisation and
// a log-odds inverse covering [-limit, limit] at the given resolution.
func NewLogOddsTable(levels int, limit, resolution float64) *LogOddsTable {
	if levels < 2 {
		levels = 2
	}
	t := &LogOddsTable{
		levels:     levels,
		forward:    make([]float64, levels+1),
		limit:      limit,
		resolution: resolution,
	}
	for i := 1; i < levels; i++ {
		p := float64(i) / float64(levels)
		t.forward[i] = math.Log(p / (1 - p))
	}
	t.forward[0] = t.forward[1]
	t.forward[levels] = t.forward[levels-1]

	n := int(2*limit/resolution) + 1
	t.inverse = make([]float64, n)
	for j := range t.inverse {
		t.inverse[j] = ExactProbability(-limit + float64(j)*resolution)
	}
	return t
}

// LogOdds returns log(p/(1-p)) quantised to the table resolution.
// Probabilities at or beyond 0 and 1 are clamped to the table ends.
func (t *LogOddsTable) LogOdds(p float64) float64 {
	i := int(p*float64(t.levels) + 0.5)
	if i < 0 {
		i = 0
	} else if i > t.levels {
		i = t.levels
	}
	return t.forward[i]
}

// Probability converts log-odds back to a probability.
func (t *LogOddsTable) Probability(logOdds float64) float64 {
	j := int((logOdds+t.limit)/t.resolution + 0.5)
	if j < 0 {
		j = 0
	} else if j >= len(t.inverse) {
		j = len(t.inverse) - 1
	}
	return t.inverse[j]
}

var defaultLogOdds = NewLogOddsTable(defaultLogOddsLevels, defaultLogOddsLimit, defaultLogOddsResolution)

// LogOdds converts a probability to log-odds using the shared table.
func LogOdds(p float64) float64 {
	return defaultLogOdds.LogOdds(p)
}

// LogOddsToProbability converts log-odds to a probability using the shared table.
func LogOddsToProbability(logOdds float64) float64 {
	return defaultLogOdds.Probability(logOdds)
}

// ExactLogOdds computes log(p/(1-p)) directly. Used by the tile codec where
// round trips must hold to float32 precision rather than table precision.
func ExactLogOdds(p float64) float64 {
	return math.Log(p / (1 - p))
}

// ExactProbability is the inverse of ExactLogOdds.
func ExactProbability(logOdds float64) float64 {
	return 1 - 1/(1+math.Exp(logOdds))
}
