package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertVec(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Z, got.Z, eps, "z")
}

func TestOrientationAxes(t *testing.T) {
	t.Parallel()
	fwd := r3.Vector{Y: 1}

	t.Run("pan right", func(t *testing.T) {
		assertVec(t, r3.Vector{X: 1}, Rotate(fwd, Orientation{Pan: math.Pi / 2}.Quaternion()))
	})
	t.Run("tilt up", func(t *testing.T) {
		assertVec(t, r3.Vector{Z: 1}, Rotate(fwd, Orientation{Tilt: math.Pi / 2}.Quaternion()))
	})
	t.Run("roll keeps forward", func(t *testing.T) {
		assertVec(t, fwd, Rotate(fwd, Orientation{Roll: 0.7}.Quaternion()))
	})
	t.Run("pan matches RotatePan", func(t *testing.T) {
		v := r3.Vector{X: 120, Y: -40, Z: 9}
		assertVec(t, RotatePan(v, 0.3, r3.Vector{}), Rotate(v, PanQuaternion(0.3)))
	})
}

func TestRotatePanAboutPivot(t *testing.T) {
	t.Parallel()
	pivot := r3.Vector{X: 100, Y: 100}
	got := RotatePan(r3.Vector{X: 100, Y: 200, Z: 5}, math.Pi/2, pivot)
	assertVec(t, r3.Vector{X: 200, Y: 100, Z: 5}, got)
}

func TestResolveStraightAhead(t *testing.T) {
	t.Parallel()
	g := SingleCameraGeometry(100, 500)
	cams := g.Resolve(Pose{Position: r3.Vector{X: 10, Y: 20}}, Orientation{})
	require.Len(t, cams, 1)

	c := cams[0]
	assertVec(t, r3.Vector{X: 10, Y: 20, Z: 500}, c.Centre)
	assertVec(t, r3.Vector{X: -40, Y: 20, Z: 500}, c.Left)
	assertVec(t, r3.Vector{X: 60, Y: 20, Z: 500}, c.Right)
	assertVec(t, r3.Vector{Y: 1}, c.Forward())
	assertVec(t, r3.Vector{Z: 1}, c.Up())
	assert.InDelta(t, 100, c.Left.Distance(c.Right), eps)
}

func TestResolveBodyAndHeadCompose(t *testing.T) {
	t.Parallel()
	g := RobotGeometry{
		HeadCentre: r3.Vector{Y: 50, Z: 300},
		Cameras: []StereoCameraMount{
			{Position: r3.Vector{Y: 20}, BaselineMM: 60},
			{Position: r3.Vector{Y: -20}, Orientation: Orientation{Pan: math.Pi}, BaselineMM: 60},
		},
	}
	cams := g.Resolve(Pose{Orientation: Orientation{Pan: math.Pi / 4}}, Orientation{Pan: math.Pi / 4})
	require.Len(t, cams, 2)

	// body pan moves the head pivot, head pan swings the cameras around it.
	head := r3.Vector{X: 50 * math.Sin(math.Pi/4), Y: 50 * math.Cos(math.Pi/4), Z: 300}
	assertVec(t, head.Add(r3.Vector{X: 20}), cams[0].Centre)
	assertVec(t, r3.Vector{X: 1}, cams[0].Forward())
	assertVec(t, r3.Vector{X: -1}, cams[1].Forward())
	assert.Equal(t, 1, cams[1].Index)
}

func TestTrialPose(t *testing.T) {
	t.Parallel()
	c := SingleCameraGeometry(100, 0).Resolve(Pose{}, Orientation{})[0]
	moved := c.TrialPose(r3.Vector{}, 10, -5, math.Pi/2)

	assertVec(t, r3.Vector{X: 10, Y: -5}, moved.Centre)
	assertVec(t, r3.Vector{X: 10, Y: 45}, moved.Left)
	assertVec(t, r3.Vector{X: 1}, moved.Forward())
	assertVec(t, r3.Vector{X: 1, Y: 1, Z: 2}.Add(c.Centre), c.ToWorld(r3.Vector{X: 1, Y: 1, Z: 2}))
}

func TestToLocalInvertsToWorld(t *testing.T) {
	t.Parallel()
	body := Pose{Position: r3.Vector{X: 300, Y: -200}, Orientation: Orientation{Pan: 0.7}}
	c := SingleCameraGeometry(100, 250).Resolve(body, Orientation{Tilt: -0.2})[0]
	local := r3.Vector{X: 12, Y: 800, Z: -40}
	assertVec(t, local, c.ToLocal(c.ToWorld(local)))
}
