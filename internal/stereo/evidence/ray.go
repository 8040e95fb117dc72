// Package evidence describes stereo observations as 3D evidence rays.
package evidence

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
)

// Ray is one stereo observation. Vertices bound the probably-occupied
// segment of the inverse sensor model, nearest first.
type Ray struct {
	Vertices     [2]r3.Vector
	ObservedFrom r3.Vector // stereo camera centre
	Width        float64   // maximum lateral extent, mm
	FattestPoint float64   // fractional position of Width along the segment
	Disparity    float64   // pixels
	Sigma        float64   // angular uncertainty, radians
	Uncertainty  float64   // range uncertainty, mm
	Colour       [3]uint8
}

// Translate returns the ray shifted by offset.
func (r Ray) Translate(offset r3.Vector) Ray {
	r.Vertices[0] = r.Vertices[0].Add(offset)
	r.Vertices[1] = r.Vertices[1].Add(offset)
	r.ObservedFrom = r.ObservedFrom.Add(offset)
	return r
}

// Rotate returns the ray panned about the vertical axis through pivot.
func (r Ray) Rotate(pan float64, pivot r3.Vector) Ray {
	r.Vertices[0] = geometry.RotatePan(r.Vertices[0], pan, pivot)
	r.Vertices[1] = geometry.RotatePan(r.Vertices[1], pan, pivot)
	r.ObservedFrom = geometry.RotatePan(r.ObservedFrom, pan, pivot)
	return r
}

// TrialPose returns the ray as it would appear from a pose offset by
// (dx, dy, pan), pan applied about pivot first. Matches
// geometry.CameraPose.TrialPose.
func (r Ray) TrialPose(pivot r3.Vector, dx, dy, pan float64) Ray {
	return r.Rotate(pan, pivot).Translate(r3.Vector{X: dx, Y: dy})
}
