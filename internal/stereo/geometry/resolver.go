package geometry

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

var (
	axisRight   = r3.Vector{X: 1}
	axisForward = r3.Vector{Y: 1}
	axisUp      = r3.Vector{Z: 1}
)

// StereoCameraMount places one stereo pair on the head. Position is the
// midpoint between the optical centres in the head frame.
type StereoCameraMount struct {
	Position    r3.Vector
	Orientation Orientation
	BaselineMM  float64
}

// RobotGeometry locates the cameras on the robot. HeadCentre is the head
// pivot in the body frame, relative to the body position.
type RobotGeometry struct {
	HeadCentre r3.Vector
	Cameras    []StereoCameraMount
}

// SingleCameraGeometry returns a robot with one forward-facing stereo pair
// on a head of the given height above the body position.
func SingleCameraGeometry(baselineMM, headHeightMM float64) RobotGeometry {
	return RobotGeometry{
		HeadCentre: r3.Vector{Z: headHeightMM},
		Cameras: []StereoCameraMount{
			{BaselineMM: baselineMM},
		},
	}
}

// CameraPose is a stereo camera resolved into world space.
type CameraPose struct {
	Index    int
	Centre   r3.Vector
	Left     r3.Vector
	Right    r3.Vector
	Rotation quat.Number
}

// Forward returns the unit optical axis.
func (c CameraPose) Forward() r3.Vector { return Rotate(axisForward, c.Rotation) }

// RightAxis returns the unit vector from the left to the right optical centre.
func (c CameraPose) RightAxis() r3.Vector { return Rotate(axisRight, c.Rotation) }

// Up returns the camera's unit up vector.
func (c CameraPose) Up() r3.Vector { return Rotate(axisUp, c.Rotation) }

// ToWorld maps a point in the camera frame (x right, y forward, z up,
// relative to Centre) into world space.
func (c CameraPose) ToWorld(local r3.Vector) r3.Vector {
	return c.Centre.Add(Rotate(local, c.Rotation))
}

// ToLocal is the inverse of ToWorld.
func (c CameraPose) ToLocal(world r3.Vector) r3.Vector {
	return Rotate(world.Sub(c.Centre), quat.Conj(c.Rotation))
}

// TrialPose returns the camera moved by a candidate pose offset: rotated
// by pan about pivot, then translated by (dx, dy).
func (c CameraPose) TrialPose(pivot r3.Vector, dx, dy, pan float64) CameraPose {
	shift := r3.Vector{X: dx, Y: dy}
	return CameraPose{
		Index:    c.Index,
		Centre:   RotatePan(c.Centre, pan, pivot).Add(shift),
		Left:     RotatePan(c.Left, pan, pivot).Add(shift),
		Right:    RotatePan(c.Right, pan, pivot).Add(shift),
		Rotation: quat.Mul(PanQuaternion(pan), c.Rotation),
	}
}

// Resolve returns every camera's world pose for the given body pose and
// head orientation relative to the body.
func (g RobotGeometry) Resolve(body Pose, head Orientation) []CameraPose {
	bodyQ := body.Orientation.Quaternion()
	headCentre := body.Position.Add(Rotate(g.HeadCentre, bodyQ))
	headQ := quat.Mul(bodyQ, head.Quaternion())

	out := make([]CameraPose, len(g.Cameras))
	for i, mount := range g.Cameras {
		q := quat.Mul(headQ, mount.Orientation.Quaternion())
		centre := headCentre.Add(Rotate(mount.Position, headQ))
		half := Rotate(axisRight, q).Mul(mount.BaselineMM / 2)
		out[i] = CameraPose{
			Index:    i,
			Centre:   centre,
			Left:     centre.Sub(half),
			Right:    centre.Add(half),
			Rotation: q,
		}
	}
	return out
}
