package sensormodel

import (
	"fmt"
	"math"
)

// StereoCamera describes a rectified stereo pair.
type StereoCamera struct {
	ImageWidth  int     // pixels
	ImageHeight int     // pixels
	FOVDegrees  float64 // horizontal field of view
	BaselineMM  float64 // distance between optical centres
	SigmaPixels float64 // disparity measurement noise

	// FeatureWindowPixels is the width of the patch a feature was matched
	// on. Zero treats features as points.
	FeatureWindowPixels float64
}

// Validate checks the camera parameters.
func (c StereoCamera) Validate() error {
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if c.FOVDegrees <= 0 || c.FOVDegrees >= 180 {
		return fmt.Errorf("FOVDegrees must be in (0, 180), got %f", c.FOVDegrees)
	}
	if c.BaselineMM <= 0 {
		return fmt.Errorf("BaselineMM must be positive, got %f", c.BaselineMM)
	}
	if c.SigmaPixels <= 0 {
		return fmt.Errorf("SigmaPixels must be positive, got %f", c.SigmaPixels)
	}
	if c.FeatureWindowPixels < 0 {
		return fmt.Errorf("FeatureWindowPixels must be non-negative, got %f", c.FeatureWindowPixels)
	}
	return nil
}

// FocalLengthPixels returns the pinhole focal length in pixels.
func (c StereoCamera) FocalLengthPixels() float64 {
	return (float64(c.ImageWidth) / 2) / math.Tan(c.FOVDegrees*math.Pi/360)
}

// RangeMM returns the distance to a feature with the given disparity, or
// +Inf for non-positive disparities.
func (c StereoCamera) RangeMM(disparity float64) float64 {
	if disparity <= 0 {
		return math.Inf(1)
	}
	return c.FocalLengthPixels() * c.BaselineMM / disparity
}

// Disparity returns the disparity of a feature at the given range.
func (c StereoCamera) Disparity(rangeMM float64) float64 {
	if rangeMM <= 0 {
		return 0
	}
	return c.FocalLengthPixels() * c.BaselineMM / rangeMM
}

// LateralExtentMM returns the width a feature covers at the given range:
// its matching window plus one sigma either side.
func (c StereoCamera) LateralExtentMM(rangeMM float64) float64 {
	return (c.FeatureWindowPixels + 2*c.SigmaPixels) * rangeMM / c.FocalLengthPixels()
}

// AngularSigma returns the angular uncertainty of a single ray in radians.
func (c StereoCamera) AngularSigma() float64 {
	return c.SigmaPixels / c.FocalLengthPixels()
}
