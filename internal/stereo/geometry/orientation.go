// Package geometry resolves where each stereo camera's optical centres are
// in world space for a given body pose and head orientation.
//
// World frame: x to the right, y forward, z up, millimetres. Pan is
// positive clockwise seen from above, tilt positive looking up, roll
// positive about the forward axis.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Orientation is a pan/tilt/roll triple in radians.
type Orientation struct {
	Pan  float64
	Tilt float64
	Roll float64
}

// Quaternion returns the rotation that applies roll, then tilt, then pan.
func (o Orientation) Quaternion() quat.Number {
	pan := axisAngle(r3.Vector{Z: 1}, -o.Pan)
	tilt := axisAngle(r3.Vector{X: 1}, o.Tilt)
	roll := axisAngle(r3.Vector{Y: 1}, o.Roll)
	return quat.Mul(pan, quat.Mul(tilt, roll))
}

func axisAngle(axis r3.Vector, angle float64) quat.Number {
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Rotate applies the unit quaternion q to v.
func Rotate(v r3.Vector, q quat.Number) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RotatePan rotates v about the vertical axis through pivot by pan radians.
func RotatePan(v r3.Vector, pan float64, pivot r3.Vector) r3.Vector {
	s, c := math.Sincos(pan)
	dx, dy := v.X-pivot.X, v.Y-pivot.Y
	return r3.Vector{
		X: pivot.X + dx*c + dy*s,
		Y: pivot.Y - dx*s + dy*c,
		Z: v.Z,
	}
}

// PanQuaternion returns the rotation for a pure pan.
func PanQuaternion(pan float64) quat.Number {
	return axisAngle(r3.Vector{Z: 1}, -pan)
}

// Pose is a position plus orientation.
type Pose struct {
	Position    r3.Vector
	Orientation Orientation
}
