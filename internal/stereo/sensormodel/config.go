package sensormodel

import (
	"fmt"

	"github.com/banshee-data/stereogrid/internal/config"
)

// Config provides a configuration builder for Model.
type Config struct {
	Camera StereoCamera

	CellSizeMM            float64 // grid cell size (default: 32)
	MaxRangeMM            float64 // ray model simulation range (default: 2500)
	VacancyMinProbability float64 // default: 0.05
	VacancyMaxProbability float64 // default: 0.3
	MinDisparity          int     // default: 3
	MaxDisparityFraction  float64 // of image width (default: 0.2)
	SmoothingPasses       int     // default: 10
	SmoothingRadius       int     // default: 20
}

// DefaultConfig returns a Config loaded from config/engine.defaults.json.
// Panics if the file cannot be found.
func DefaultConfig() *Config {
	return ConfigFromEngine(config.MustLoadDefaultConfig())
}

// ConfigFromEngine builds a Config from a loaded EngineConfig.
func ConfigFromEngine(cfg *config.EngineConfig) *Config {
	return &Config{
		Camera: StereoCamera{
			ImageWidth:  cfg.GetImageWidth(),
			ImageHeight: cfg.GetImageHeight(),
			FOVDegrees:  cfg.GetFOVDegrees(),
			BaselineMM:  cfg.GetBaselineMM(),
			SigmaPixels: cfg.GetSigmaPixels(),

			FeatureWindowPixels: cfg.GetFeatureWindowPixels(),
		},
		CellSizeMM:            cfg.GetCellSizeMM(),
		MaxRangeMM:            cfg.GetMaxMappingRangeMM(),
		VacancyMinProbability: cfg.GetVacancyMinProbability(),
		VacancyMaxProbability: cfg.GetVacancyMaxProbability(),
		MinDisparity:          cfg.GetMinDisparity(),
		MaxDisparityFraction:  cfg.GetMaxDisparityFraction(),
		SmoothingPasses:       cfg.GetRayModelSmoothingPasses(),
		SmoothingRadius:       cfg.GetRayModelSmoothingRadius(),
	}
}

// WithCamera sets the stereo camera.
func (c *Config) WithCamera(cam StereoCamera) *Config {
	c.Camera = cam
	return c
}

// WithCellSize sets the grid cell size in millimetres.
func (c *Config) WithCellSize(mm float64) *Config {
	c.CellSizeMM = mm
	return c
}

// WithMaxRange sets the maximum simulated range in millimetres.
func (c *Config) WithMaxRange(mm float64) *Config {
	c.MaxRangeMM = mm
	return c
}

// WithVacancy sets the vacancy strength bounds.
func (c *Config) WithVacancy(minProb, maxProb float64) *Config {
	c.VacancyMinProbability = minProb
	c.VacancyMaxProbability = maxProb
	return c
}

// WithSmoothing sets the ray model smoothing passes and kernel radius.
func (c *Config) WithSmoothing(passes, radius int) *Config {
	c.SmoothingPasses = passes
	c.SmoothingRadius = radius
	return c
}

// MaxDisparity returns the largest modelled disparity in pixels.
func (c *Config) MaxDisparity() int {
	return int(float64(c.Camera.ImageWidth) * c.MaxDisparityFraction)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return err
	}
	if c.CellSizeMM <= 0 {
		return fmt.Errorf("CellSizeMM must be positive, got %f", c.CellSizeMM)
	}
	if c.MaxRangeMM < c.CellSizeMM {
		return fmt.Errorf("MaxRangeMM must be at least CellSizeMM, got %f", c.MaxRangeMM)
	}
	if c.VacancyMinProbability < 0 || c.VacancyMaxProbability > 0.5 || c.VacancyMinProbability > c.VacancyMaxProbability {
		return fmt.Errorf("vacancy bounds must satisfy 0 <= min <= max <= 0.5, got %f/%f", c.VacancyMinProbability, c.VacancyMaxProbability)
	}
	if c.MinDisparity < 1 {
		return fmt.Errorf("MinDisparity must be at least 1, got %d", c.MinDisparity)
	}
	if c.MaxDisparity() < c.MinDisparity {
		return fmt.Errorf("max disparity %d is below MinDisparity %d", c.MaxDisparity(), c.MinDisparity)
	}
	if c.SmoothingPasses < 0 || c.SmoothingRadius < 0 {
		return fmt.Errorf("smoothing must be non-negative, got passes=%d radius=%d", c.SmoothingPasses, c.SmoothingRadius)
	}
	return nil
}

// Model bundles the read-only tables one grid needs to insert rays.
type Model struct {
	Camera   StereoCamera
	LogOdds  *LogOddsTable
	Gaussian *HalfGaussian
	Vacancy  *VacancyTable
	Rays     *RayModel
}

// Build validates the configuration and constructs every table.
func (c *Config) Build() (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor model config: %w", err)
	}
	rays, err := BuildRayModel(RayModelParams{
		Camera:          c.Camera,
		CellSizeMM:      c.CellSizeMM,
		MaxRangeMM:      c.MaxRangeMM,
		MinDisparity:    c.MinDisparity,
		MaxDisparity:    c.MaxDisparity(),
		SmoothingPasses: c.SmoothingPasses,
		SmoothingRadius: c.SmoothingRadius,
	})
	if err != nil {
		return nil, err
	}
	return &Model{
		Camera:   c.Camera,
		LogOdds:  defaultLogOdds,
		Gaussian: NewHalfGaussian(DefaultGaussianLevels),
		Vacancy:  NewVacancyTable(c.VacancyMinProbability, c.VacancyMaxProbability, DefaultVacancyLevels),
		Rays:     rays,
	}, nil
}
