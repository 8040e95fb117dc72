// Package synthetic generates stereo observations of a simple landmark
// world for tests, demos and the gen-disparity-log tool.
package synthetic

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/disparitylog"
	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// Landmark is a textured point the cameras can match.
type Landmark struct {
	Position r3.Vector
	Colour   [3]uint8
}

// Corridor returns landmarks on two walls running along +y at x = ±width/2,
// from y = 0 to length, every spacing mm along and up to height.
func Corridor(lengthMM, widthMM, heightMM, spacingMM float64) []Landmark {
	var out []Landmark
	for y := 0.0; y <= lengthMM; y += spacingMM {
		for z := spacingMM / 2; z <= heightMM; z += spacingMM {
			shade := uint8(int(y/spacingMM+z/spacingMM) % 2 * 180)
			out = append(out,
				Landmark{Position: r3.Vector{X: -widthMM / 2, Y: y, Z: z}, Colour: [3]uint8{200, shade, 40}},
				Landmark{Position: r3.Vector{X: widthMM / 2, Y: y, Z: z}, Colour: [3]uint8{40, shade, 200}},
			)
		}
	}
	return out
}

// Generator projects landmarks into every camera of a robot.
type Generator struct {
	Landmarks   []Landmark
	Camera      sensormodel.StereoCamera
	Robot       geometry.RobotGeometry
	MaxRangeMM  float64
	NoisePixels float64 // standard deviation added to each disparity

	rng *rand.Rand
}

// NewGenerator builds a noise-free generator. seed fixes the noise
// sequence once NoisePixels is set.
func NewGenerator(landmarks []Landmark, cam sensormodel.StereoCamera, robot geometry.RobotGeometry, maxRangeMM float64, seed int64) *Generator {
	return &Generator{
		Landmarks:  landmarks,
		Camera:     cam,
		Robot:      robot,
		MaxRangeMM: maxRangeMM,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Observe returns one record per camera for the given pose.
func (g *Generator) Observe(timestampNs int64, body geometry.Pose, head geometry.Orientation) []*disparitylog.Record {
	cams := g.Robot.Resolve(body, head)
	out := make([]*disparitylog.Record, 0, len(cams))
	for _, cam := range cams {
		rec := &disparitylog.Record{
			TimestampNs: timestampNs,
			X:           body.Position.X,
			Y:           body.Position.Y,
			Pan:         body.Orientation.Pan,
			HeadPan:     head.Pan,
			HeadTilt:    head.Tilt,
			HeadRoll:    head.Roll,
			CameraIndex: cam.Index,
			Features:    g.project(cam),
		}
		out = append(out, rec)
	}
	return out
}

func (g *Generator) project(cam geometry.CameraPose) []evidence.Feature {
	focal := g.Camera.FocalLengthPixels()
	w, h := float64(g.Camera.ImageWidth), float64(g.Camera.ImageHeight)
	var out []evidence.Feature
	for _, lm := range g.Landmarks {
		local := cam.ToLocal(lm.Position)
		depth := local.Y
		if depth <= 0 || depth > g.MaxRangeMM {
			continue
		}
		px := w/2 + focal*local.X/depth
		py := h/2 - focal*local.Z/depth
		if px < 0 || px >= w || py < 0 || py >= h {
			continue
		}
		d := g.Camera.Disparity(depth)
		if g.NoisePixels > 0 {
			d += g.rng.NormFloat64() * g.NoisePixels
		}
		if d <= 0 {
			continue
		}
		out = append(out, evidence.Feature{X: px, Y: py, Disparity: d, Colour: lm.Colour})
	}
	return out
}

// StraightPath returns positions from start along heading (radians from
// +y towards +x) every step mm for length mm.
func StraightPath(start r3.Vector, heading, lengthMM, stepMM float64) []r3.Vector {
	if stepMM <= 0 {
		return []r3.Vector{start}
	}
	dir := r3.Vector{X: math.Sin(heading), Y: math.Cos(heading)}
	n := int(lengthMM/stepMM) + 1
	out := make([]r3.Vector, n)
	for i := range out {
		out[i] = start.Add(dir.Mul(float64(i) * stepMM))
	}
	return out
}

// Run records an observation at every path position, facing along the
// path with the head straight.
func (g *Generator) Run(rec *disparitylog.Recorder, path []r3.Vector, heading float64, startNs, intervalNs int64) error {
	rec.SetPath(path)
	for i, p := range path {
		body := geometry.Pose{Position: p, Orientation: geometry.Orientation{Pan: heading}}
		for _, r := range g.Observe(startNs+int64(i)*intervalNs, body, geometry.Orientation{}) {
			if err := rec.Record(i, r); err != nil {
				return err
			}
		}
	}
	return nil
}
