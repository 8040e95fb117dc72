package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

// EngineConfig is the root configuration for the mapping/localisation engine.
// Every field is optional; the Get* accessors supply the defaults so that a
// partial JSON file only needs to mention the values it overrides.
type EngineConfig struct {
	// Grid geometry
	CellSizeMM             *float64 `json:"cell_size_mm,omitempty"`
	DimensionCells         *int     `json:"dimension_cells,omitempty"`
	DimensionCellsVertical *int     `json:"dimension_cells_vertical,omitempty"`
	MaxMappingRangeMM      *float64 `json:"max_mapping_range_mm,omitempty"`

	// Sensor model
	VacancyMinProbability   *float64 `json:"vacancy_min_probability,omitempty"`
	VacancyMaxProbability   *float64 `json:"vacancy_max_probability,omitempty"`
	TurboMode               *bool    `json:"turbo_mode,omitempty"`
	RayModelSmoothingPasses *int     `json:"ray_model_smoothing_passes,omitempty"`
	RayModelSmoothingRadius *int     `json:"ray_model_smoothing_radius,omitempty"`
	MinDisparity            *int     `json:"min_disparity,omitempty"`
	MaxDisparityFraction    *float64 `json:"max_disparity_fraction,omitempty"`

	// Stereo camera
	ImageWidth  *int     `json:"image_width,omitempty"`
	ImageHeight *int     `json:"image_height,omitempty"`
	FOVDegrees  *float64 `json:"fov_degrees,omitempty"`
	BaselineMM  *float64 `json:"baseline_mm,omitempty"`
	SigmaPixels *float64 `json:"sigma_pixels,omitempty"`

	FeatureWindowPixels *float64 `json:"feature_window_pixels,omitempty"`

	// Metagrid and localisation
	GridCentreSpacingFactor     *float64 `json:"grid_centre_spacing_factor,omitempty"`
	LocalisationRadiusMM        *float64 `json:"localisation_radius_mm,omitempty"`
	LocalisationAngularRangeDeg *float64 `json:"localisation_angular_range_deg,omitempty"`
	LocalisationSamples         *int     `json:"localisation_samples,omitempty"`

	// Pose publication (optional)
	MQTTBroker *string `json:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty"`
}

// EmptyEngineConfig returns an EngineConfig with all fields unset.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded.
func MustLoadDefaultConfig() *EngineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadEngineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks the values that are set.
func (c *EngineConfig) Validate() error {
	if c.CellSizeMM != nil && *c.CellSizeMM <= 0 {
		return fmt.Errorf("cell_size_mm must be positive, got %f", *c.CellSizeMM)
	}
	if c.DimensionCells != nil && *c.DimensionCells < 4 {
		return fmt.Errorf("dimension_cells must be at least 4, got %d", *c.DimensionCells)
	}
	if c.DimensionCellsVertical != nil && *c.DimensionCellsVertical < 1 {
		return fmt.Errorf("dimension_cells_vertical must be positive, got %d", *c.DimensionCellsVertical)
	}
	if c.MaxMappingRangeMM != nil && *c.MaxMappingRangeMM <= 0 {
		return fmt.Errorf("max_mapping_range_mm must be positive, got %f", *c.MaxMappingRangeMM)
	}

	vmin, vmax := c.GetVacancyMinProbability(), c.GetVacancyMaxProbability()
	if vmin < 0 || vmax > 0.5 || vmin > vmax {
		return fmt.Errorf("vacancy probabilities must satisfy 0 <= min <= max <= 0.5, got min=%f max=%f", vmin, vmax)
	}

	if c.RayModelSmoothingPasses != nil && *c.RayModelSmoothingPasses < 0 {
		return fmt.Errorf("ray_model_smoothing_passes must be non-negative, got %d", *c.RayModelSmoothingPasses)
	}
	if c.RayModelSmoothingRadius != nil && *c.RayModelSmoothingRadius < 0 {
		return fmt.Errorf("ray_model_smoothing_radius must be non-negative, got %d", *c.RayModelSmoothingRadius)
	}
	if c.MinDisparity != nil && *c.MinDisparity < 1 {
		return fmt.Errorf("min_disparity must be at least 1, got %d", *c.MinDisparity)
	}
	if c.MaxDisparityFraction != nil && (*c.MaxDisparityFraction <= 0 || *c.MaxDisparityFraction > 1) {
		return fmt.Errorf("max_disparity_fraction must be in (0, 1], got %f", *c.MaxDisparityFraction)
	}
	if int(float64(c.GetImageWidth())*c.GetMaxDisparityFraction()) < c.GetMinDisparity() {
		return fmt.Errorf("max disparity (%d px) is below min_disparity %d",
			int(float64(c.GetImageWidth())*c.GetMaxDisparityFraction()), c.GetMinDisparity())
	}

	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}
	if c.ImageHeight != nil && *c.ImageHeight <= 0 {
		return fmt.Errorf("image_height must be positive, got %d", *c.ImageHeight)
	}
	if c.FOVDegrees != nil && (*c.FOVDegrees <= 0 || *c.FOVDegrees >= 180) {
		return fmt.Errorf("fov_degrees must be in (0, 180), got %f", *c.FOVDegrees)
	}
	if c.BaselineMM != nil && *c.BaselineMM <= 0 {
		return fmt.Errorf("baseline_mm must be positive, got %f", *c.BaselineMM)
	}
	if c.SigmaPixels != nil && *c.SigmaPixels <= 0 {
		return fmt.Errorf("sigma_pixels must be positive, got %f", *c.SigmaPixels)
	}
	if c.FeatureWindowPixels != nil && *c.FeatureWindowPixels < 0 {
		return fmt.Errorf("feature_window_pixels must be non-negative, got %f", *c.FeatureWindowPixels)
	}

	if c.GridCentreSpacingFactor != nil && (*c.GridCentreSpacingFactor <= 0 || *c.GridCentreSpacingFactor > 1) {
		return fmt.Errorf("grid_centre_spacing_factor must be in (0, 1], got %f", *c.GridCentreSpacingFactor)
	}
	if c.LocalisationRadiusMM != nil && *c.LocalisationRadiusMM < 0 {
		return fmt.Errorf("localisation_radius_mm must be non-negative, got %f", *c.LocalisationRadiusMM)
	}
	if c.LocalisationAngularRangeDeg != nil && (*c.LocalisationAngularRangeDeg < 0 || *c.LocalisationAngularRangeDeg > 180) {
		return fmt.Errorf("localisation_angular_range_deg must be in [0, 180], got %f", *c.LocalisationAngularRangeDeg)
	}
	if c.LocalisationSamples != nil && *c.LocalisationSamples < 0 {
		return fmt.Errorf("localisation_samples must be non-negative, got %d", *c.LocalisationSamples)
	}
	return nil
}

// GetCellSizeMM returns the cell_size_mm value or the default.
func (c *EngineConfig) GetCellSizeMM() float64 {
	if c.CellSizeMM == nil {
		return 32
	}
	return *c.CellSizeMM
}

// GetDimensionCells returns the dimension_cells value or the default.
func (c *EngineConfig) GetDimensionCells() int {
	if c.DimensionCells == nil {
		return 128
	}
	return *c.DimensionCells
}

// GetDimensionCellsVertical returns the dimension_cells_vertical value or the default.
func (c *EngineConfig) GetDimensionCellsVertical() int {
	if c.DimensionCellsVertical == nil {
		return 64
	}
	return *c.DimensionCellsVertical
}

// GetMaxMappingRangeMM returns the max_mapping_range_mm value or the default.
func (c *EngineConfig) GetMaxMappingRangeMM() float64 {
	if c.MaxMappingRangeMM == nil {
		return 2500
	}
	return *c.MaxMappingRangeMM
}

// GetVacancyMinProbability returns the vacancy_min_probability value or the default.
func (c *EngineConfig) GetVacancyMinProbability() float64 {
	if c.VacancyMinProbability == nil {
		return 0.05
	}
	return *c.VacancyMinProbability
}

// GetVacancyMaxProbability returns the vacancy_max_probability value or the default.
func (c *EngineConfig) GetVacancyMaxProbability() float64 {
	if c.VacancyMaxProbability == nil {
		return 0.3
	}
	return *c.VacancyMaxProbability
}

// GetTurboMode returns the turbo_mode value or the default.
func (c *EngineConfig) GetTurboMode() bool {
	if c.TurboMode == nil {
		return false
	}
	return *c.TurboMode
}

// GetRayModelSmoothingPasses returns the ray_model_smoothing_passes value or the default.
func (c *EngineConfig) GetRayModelSmoothingPasses() int {
	if c.RayModelSmoothingPasses == nil {
		return 10
	}
	return *c.RayModelSmoothingPasses
}

// GetRayModelSmoothingRadius returns the ray_model_smoothing_radius value or the default.
func (c *EngineConfig) GetRayModelSmoothingRadius() int {
	if c.RayModelSmoothingRadius == nil {
		return 20
	}
	return *c.RayModelSmoothingRadius
}

// GetMinDisparity returns the min_disparity value or the default.
func (c *EngineConfig) GetMinDisparity() int {
	if c.MinDisparity == nil {
		return 3
	}
	return *c.MinDisparity
}

// GetMaxDisparityFraction returns the max_disparity_fraction value or the default.
func (c *EngineConfig) GetMaxDisparityFraction() float64 {
	if c.MaxDisparityFraction == nil {
		return 0.2
	}
	return *c.MaxDisparityFraction
}

// GetImageWidth returns the image_width value or the default.
func (c *EngineConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 320
	}
	return *c.ImageWidth
}

// GetImageHeight returns the image_height value or the default.
func (c *EngineConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 240
	}
	return *c.ImageHeight
}

// GetFOVDegrees returns the fov_degrees value or the default.
func (c *EngineConfig) GetFOVDegrees() float64 {
	if c.FOVDegrees == nil {
		return 65
	}
	return *c.FOVDegrees
}

// GetBaselineMM returns the baseline_mm value or the default.
func (c *EngineConfig) GetBaselineMM() float64 {
	if c.BaselineMM == nil {
		return 100
	}
	return *c.BaselineMM
}

// GetSigmaPixels returns the sigma_pixels value or the default.
func (c *EngineConfig) GetSigmaPixels() float64 {
	if c.SigmaPixels == nil {
		return 1.0
	}
	return *c.SigmaPixels
}

// GetFeatureWindowPixels returns the feature_window_pixels value or the default.
func (c *EngineConfig) GetFeatureWindowPixels() float64 {
	if c.FeatureWindowPixels == nil {
		return 16
	}
	return *c.FeatureWindowPixels
}

// GetGridCentreSpacingFactor returns the grid_centre_spacing_factor value or the default.
func (c *EngineConfig) GetGridCentreSpacingFactor() float64 {
	if c.GridCentreSpacingFactor == nil {
		return 0.75
	}
	return *c.GridCentreSpacingFactor
}

// GetLocalisationRadiusMM returns the localisation_radius_mm value or the default.
func (c *EngineConfig) GetLocalisationRadiusMM() float64 {
	if c.LocalisationRadiusMM == nil {
		return 100
	}
	return *c.LocalisationRadiusMM
}

// GetLocalisationAngularRangeDeg returns the localisation_angular_range_deg value or the default.
func (c *EngineConfig) GetLocalisationAngularRangeDeg() float64 {
	if c.LocalisationAngularRangeDeg == nil {
		return 5
	}
	return *c.LocalisationAngularRangeDeg
}

// GetLocalisationSamples returns the localisation_samples value or the default.
func (c *EngineConfig) GetLocalisationSamples() int {
	if c.LocalisationSamples == nil {
		return 2
	}
	return *c.LocalisationSamples
}

// GetMQTTBroker returns the mqtt_broker value, empty when publication is off.
func (c *EngineConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the mqtt_topic value or the default.
func (c *EngineConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "stereogrid/pose"
	}
	return *c.MQTTTopic
}
