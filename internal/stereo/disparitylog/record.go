// Package disparitylog records and replays stereo disparity observations
// along a robot path.
//
// A log is a directory holding header.json, index.bin, path.json and
// length-prefixed records in records/chunk_NNNN.bin. The index maps every
// record to the path sample it was observed at so a grid can replay only
// the observations near its centre.
package disparitylog

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
)

// recordHeaderSize covers timestamp, six pose floats, camera index and
// feature count.
const recordHeaderSize = 8 + 6*4 + 4 + 4

// Record is every feature one stereo camera saw at one pose.
type Record struct {
	TimestampNs int64
	X, Y, Pan   float64 // body pose, mm and radians
	HeadPan     float64
	HeadTilt    float64
	HeadRoll    float64
	CameraIndex int
	Features    []evidence.Feature
}

// BodyPose returns the body pose the record was taken at.
func (r *Record) BodyPose() geometry.Pose {
	return geometry.Pose{
		Position:    r3.Vector{X: r.X, Y: r.Y},
		Orientation: geometry.Orientation{Pan: r.Pan},
	}
}

// HeadOrientation returns the head orientation relative to the body.
func (r *Record) HeadOrientation() geometry.Orientation {
	return geometry.Orientation{Pan: r.HeadPan, Tilt: r.HeadTilt, Roll: r.HeadRoll}
}

// MarshalBinary encodes the record, little-endian:
//
//	int64 timestamp
//	float32 x, y, pan, head_pan, head_tilt, head_roll
//	int32 camera index, feature count
//	float32[count*3] image x, image y, disparity
//	byte[count*3] RGB
func (r *Record) MarshalBinary() ([]byte, error) {
	if r.CameraIndex < 0 || r.CameraIndex > math.MaxInt32 {
		return nil, fmt.Errorf("camera index %d out of range", r.CameraIndex)
	}
	n := len(r.Features)
	buf := make([]byte, 0, recordHeaderSize+n*15)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.TimestampNs))
	for _, v := range [6]float64{r.X, r.Y, r.Pan, r.HeadPan, r.HeadTilt, r.HeadRoll} {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(r.CameraIndex)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(n)))
	for _, f := range r.Features {
		for _, v := range [3]float64{f.X, f.Y, f.Disparity} {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
		}
	}
	for _, f := range r.Features {
		buf = append(buf, f.Colour[0], f.Colour[1], f.Colour[2])
	}
	return buf, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary. The input must
// be exactly one record.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < recordHeaderSize {
		return fmt.Errorf("record truncated: %d bytes", len(data))
	}
	f32 := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
	}
	r.TimestampNs = int64(binary.LittleEndian.Uint64(data))
	r.X, r.Y, r.Pan = f32(8), f32(12), f32(16)
	r.HeadPan, r.HeadTilt, r.HeadRoll = f32(20), f32(24), f32(28)
	r.CameraIndex = int(int32(binary.LittleEndian.Uint32(data[32:])))
	n := int(int32(binary.LittleEndian.Uint32(data[36:])))
	if r.CameraIndex < 0 {
		return fmt.Errorf("negative camera index %d", r.CameraIndex)
	}
	if n < 0 {
		return fmt.Errorf("negative feature count %d", n)
	}
	if want := recordHeaderSize + n*15; len(data) != want {
		return fmt.Errorf("record with %d features needs %d bytes, got %d", n, want, len(data))
	}

	r.Features = make([]evidence.Feature, n)
	off := recordHeaderSize
	for i := range r.Features {
		r.Features[i].X = f32(off)
		r.Features[i].Y = f32(off + 4)
		r.Features[i].Disparity = f32(off + 8)
		off += 12
	}
	for i := range r.Features {
		copy(r.Features[i].Colour[:], data[off:off+3])
		off += 3
	}
	return nil
}
