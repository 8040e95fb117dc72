package grid

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// PoseOffset is a candidate correction to the believed robot pose.
type PoseOffset struct {
	X   float64 `json:"x"`   // mm
	Y   float64 `json:"y"`   // mm
	Pan float64 `json:"pan"` // radians
}

// LocaliseParams defines the pose search lattice: offsets of
// i*RadiusMM/Samples in x and y and k*AngularRange/Samples in pan, for
// i, k in [-Samples, Samples].
type LocaliseParams struct {
	RadiusMM        float64
	AngularRangeRad float64
	Samples         int
}

// LocaliseResult is the outcome of a pose search.
type LocaliseResult struct {
	Offset    PoseOffset
	Score     float64 // NoOccupancyEvidence when no trial matched
	Evaluated int
}

// Localise scores every trial pose on the lattice around the believed pose
// and returns the best one. The zero offset is evaluated first and wins
// ties. pivot is the point the trial pans rotate about, normally the
// robot position.
func (g *OccupancyGrid) Localise(raysPerCamera [][]evidence.Ray, cams []geometry.CameraPose, pivot r3.Vector, params LocaliseParams) LocaliseResult {
	best := LocaliseResult{Score: sensormodel.NoOccupancyEvidence}
	for _, off := range trialOffsets(params) {
		score := g.scoreTrial(raysPerCamera, cams, pivot, off)
		best.Evaluated++
		if BetterScore(score, best.Score) {
			best.Offset = off
			best.Score = score
		}
	}
	diagf("localise: %d trials, best offset (%.1f, %.1f, %.4f) score %.3f",
		best.Evaluated, best.Offset.X, best.Offset.Y, best.Offset.Pan, best.Score)
	return best
}

func (g *OccupancyGrid) scoreTrial(raysPerCamera [][]evidence.Ray, cams []geometry.CameraPose, pivot r3.Vector, off PoseOffset) float64 {
	if off == (PoseOffset{}) {
		return g.AddObservation(raysPerCamera, cams, true).Score
	}
	trialCams := make([]geometry.CameraPose, len(cams))
	for i, c := range cams {
		trialCams[i] = c.TrialPose(pivot, off.X, off.Y, off.Pan)
	}
	trialRays := make([][]evidence.Ray, len(raysPerCamera))
	for i, rays := range raysPerCamera {
		trialRays[i] = make([]evidence.Ray, len(rays))
		for j, r := range rays {
			trialRays[i][j] = r.TrialPose(pivot, off.X, off.Y, off.Pan)
		}
	}
	return g.AddObservation(trialRays, trialCams, true).Score
}

func trialOffsets(p LocaliseParams) []PoseOffset {
	n := p.Samples
	if n < 0 {
		n = 0
	}
	offsets := []PoseOffset{{}}
	if n == 0 {
		return offsets
	}
	step := p.RadiusMM / float64(n)
	angStep := p.AngularRangeRad / float64(n)
	for k := -n; k <= n; k++ {
		for j := -n; j <= n; j++ {
			for i := -n; i <= n; i++ {
				if i == 0 && j == 0 && k == 0 {
					continue
				}
				offsets = append(offsets, PoseOffset{
					X:   float64(i) * step,
					Y:   float64(j) * step,
					Pan: float64(k) * angStep,
				})
			}
		}
	}
	return offsets
}
