package evidence

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

var testCamera = sensormodel.StereoCamera{ImageWidth: 320, ImageHeight: 240, FOVDegrees: 90, BaselineMM: 100, SigmaPixels: 1}

func straightAhead() geometry.CameraPose {
	return geometry.SingleCameraGeometry(100, 0).Resolve(geometry.Pose{}, geometry.Orientation{})[0]
}

func TestCreateRayCentreFeature(t *testing.T) {
	t.Parallel()
	m := StereoModel{Camera: testCamera, MaxRangeMM: 5000}
	// focal 160px, baseline 100mm: 16px is 1m.
	ray, ok := m.CreateRay(Feature{X: 160, Y: 120, Disparity: 16, Colour: [3]uint8{1, 2, 3}}, straightAhead())
	require.True(t, ok)

	assert.InDelta(t, 16000.0/17, ray.Vertices[0].Y, 1e-9)
	assert.InDelta(t, 16000.0/15, ray.Vertices[1].Y, 1e-9)
	assert.InDelta(t, 0, ray.Vertices[0].X, 1e-9)
	assert.InDelta(t, 0, ray.Vertices[1].Z, 1e-9)
	assert.Greater(t, ray.FattestPoint, 0.0)
	assert.Less(t, ray.FattestPoint, 1.0)
	assert.InDelta(t, 2*1000.0/160, ray.Width, 1e-9)
	assert.InDelta(t, ray.Vertices[0].Distance(ray.Vertices[1]), ray.Uncertainty, 1e-9)
	assert.Equal(t, [3]uint8{1, 2, 3}, ray.Colour)
	assert.Equal(t, r3.Vector{}, ray.ObservedFrom)
}

func TestCreateRayFeatureWindow(t *testing.T) {
	t.Parallel()
	cam := testCamera
	cam.FeatureWindowPixels = 14
	m := StereoModel{Camera: cam, MaxRangeMM: 5000}

	ray, ok := m.CreateRay(Feature{X: 160, Y: 120, Disparity: 16}, straightAhead())
	require.True(t, ok)
	assert.InDelta(t, 16*1000.0/160, ray.Width, 1e-9, "window plus one sigma either side at 1m")
	assert.InDelta(t, cam.LateralExtentMM(1000), ray.Width, 1e-9)
}

func TestCreateRayOffAxis(t *testing.T) {
	t.Parallel()
	m := StereoModel{Camera: testCamera, MaxRangeMM: 5000}
	ray, ok := m.CreateRay(Feature{X: 320, Y: 0, Disparity: 16}, straightAhead())
	require.True(t, ok)
	// right edge of a 90 degree image is 45 degrees off axis, top edge 36.9.
	assert.InDelta(t, ray.Vertices[0].Y, ray.Vertices[0].X, 1e-9)
	assert.InDelta(t, 0.75*ray.Vertices[0].Y, ray.Vertices[0].Z, 1e-9)
}

func TestCreateRayLimits(t *testing.T) {
	t.Parallel()
	m := StereoModel{Camera: testCamera, MaxRangeMM: 2000}

	_, ok := m.CreateRay(Feature{X: 160, Y: 120, Disparity: 0}, straightAhead())
	assert.False(t, ok, "zero disparity")

	_, ok = m.CreateRay(Feature{X: 160, Y: 120, Disparity: 4}, straightAhead())
	assert.False(t, ok, "near bound beyond range")

	ray, ok := m.CreateRay(Feature{X: 160, Y: 120, Disparity: 9}, straightAhead())
	require.True(t, ok)
	assert.InDelta(t, 2000, ray.Vertices[1].Y, 1e-9, "far bound clamps to range")

	rays := m.CreateRays([]Feature{{Disparity: 0}, {X: 160, Y: 120, Disparity: 20}}, straightAhead())
	assert.Len(t, rays, 1)
}

func TestRayTransforms(t *testing.T) {
	t.Parallel()
	r := Ray{Vertices: [2]r3.Vector{{Y: 100}, {Y: 200}}, ObservedFrom: r3.Vector{}, Width: 10}

	moved := r.Translate(r3.Vector{X: 5})
	assert.Equal(t, 5.0, moved.Vertices[1].X)
	assert.Equal(t, 0.0, r.Vertices[1].X, "original untouched")

	turned := r.Rotate(math.Pi/2, r3.Vector{})
	assert.InDelta(t, 200, turned.Vertices[1].X, 1e-9)
	assert.InDelta(t, 0, turned.Vertices[1].Y, 1e-9)

	trial := r.TrialPose(r3.Vector{}, 1, 2, math.Pi/2)
	assert.InDelta(t, 201, trial.Vertices[1].X, 1e-9)
	assert.InDelta(t, 2, trial.Vertices[1].Y, 1e-9)
	assert.InDelta(t, 100, trial.Vertices[0].Distance(trial.Vertices[1]), 1e-9)
}
