package evidence

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// Feature is a matched stereo corner in left image coordinates.
type Feature struct {
	X, Y      float64 // pixels, origin top left
	Disparity float64 // pixels
	Colour    [3]uint8
}

// StereoModel turns features into evidence rays for one camera type.
type StereoModel struct {
	Camera     sensormodel.StereoCamera
	MaxRangeMM float64
}

// CreateRay builds the evidence ray for a feature seen by cam. It reports
// false for features with no usable depth: non-positive disparity or a
// near bound past MaxRangeMM.
func (m StereoModel) CreateRay(f Feature, cam geometry.CameraPose) (Ray, bool) {
	if f.Disparity <= 0 {
		return Ray{}, false
	}
	focal := m.Camera.FocalLengthPixels()
	fb := focal * m.Camera.BaselineMM
	sigma := m.Camera.SigmaPixels

	rangeMM := fb / f.Disparity
	near := fb / (f.Disparity + sigma)
	if near >= m.MaxRangeMM {
		return Ray{}, false
	}
	far := m.MaxRangeMM
	if f.Disparity > sigma {
		far = math.Min(fb/(f.Disparity-sigma), m.MaxRangeMM)
	}

	dir := r3.Vector{
		X: (f.X - float64(m.Camera.ImageWidth)/2) / focal,
		Y: 1,
		Z: (float64(m.Camera.ImageHeight)/2 - f.Y) / focal,
	}

	fattest := 1.0
	if far > near {
		fattest = math.Max(0, math.Min(1, (rangeMM-near)/(far-near)))
	}

	return Ray{
		Vertices:     [2]r3.Vector{cam.ToWorld(dir.Mul(near)), cam.ToWorld(dir.Mul(far))},
		ObservedFrom: cam.Centre,
		Width:        m.Camera.LateralExtentMM(math.Min(rangeMM, m.MaxRangeMM)),
		FattestPoint: fattest,
		Disparity:    f.Disparity,
		Sigma:        m.Camera.AngularSigma(),
		Uncertainty:  far - near,
		Colour:       f.Colour,
	}, true
}

// CreateRays converts every usable feature.
func (m StereoModel) CreateRays(features []Feature, cam geometry.CameraPose) []Ray {
	rays := make([]Ray, 0, len(features))
	for _, f := range features {
		if r, ok := m.CreateRay(f, cam); ok {
			rays = append(rays, r)
		}
	}
	return rays
}
