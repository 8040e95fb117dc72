package grid

import (
	"fmt"

	"github.com/banshee-data/stereogrid/internal/config"
)

// Config provides a configuration builder for OccupancyGrid.
type Config struct {
	DimensionCells         int     // x and y extent (default: 128)
	DimensionCellsVertical int     // z extent (default: 64)
	CellSizeMM             float64 // default: 32
	MaxMappingRangeMM      float64 // walks stop beyond this distance from the observer (default: 2500)
	TurboMode              bool    // skip the right camera vacancy pass (default: false)
}

// DefaultConfig returns a Config loaded from config/engine.defaults.json.
// Panics if the file cannot be found.
func DefaultConfig() *Config {
	return ConfigFromEngine(config.MustLoadDefaultConfig())
}

// ConfigFromEngine builds a Config from a loaded EngineConfig.
func ConfigFromEngine(cfg *config.EngineConfig) *Config {
	return &Config{
		DimensionCells:         cfg.GetDimensionCells(),
		DimensionCellsVertical: cfg.GetDimensionCellsVertical(),
		CellSizeMM:             cfg.GetCellSizeMM(),
		MaxMappingRangeMM:      cfg.GetMaxMappingRangeMM(),
		TurboMode:              cfg.GetTurboMode(),
	}
}

// WithDimensions sets the horizontal and vertical extent in cells.
func (c *Config) WithDimensions(cells, vertical int) *Config {
	c.DimensionCells = cells
	c.DimensionCellsVertical = vertical
	return c
}

// WithCellSize sets the cell size in millimetres.
func (c *Config) WithCellSize(mm float64) *Config {
	c.CellSizeMM = mm
	return c
}

// WithMaxMappingRange sets the maximum mapping range in millimetres.
func (c *Config) WithMaxMappingRange(mm float64) *Config {
	c.MaxMappingRangeMM = mm
	return c
}

// WithTurboMode enables or disables the right camera vacancy pass.
func (c *Config) WithTurboMode(on bool) *Config {
	c.TurboMode = on
	return c
}

// DimensionMM returns the horizontal grid extent in millimetres.
func (c *Config) DimensionMM() float64 {
	return float64(c.DimensionCells) * c.CellSizeMM
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DimensionCells < 4 {
		return fmt.Errorf("DimensionCells must be at least 4, got %d", c.DimensionCells)
	}
	if c.DimensionCellsVertical < 1 {
		return fmt.Errorf("DimensionCellsVertical must be positive, got %d", c.DimensionCellsVertical)
	}
	if c.CellSizeMM <= 0 {
		return fmt.Errorf("CellSizeMM must be positive, got %f", c.CellSizeMM)
	}
	if c.MaxMappingRangeMM <= 0 {
		return fmt.Errorf("MaxMappingRangeMM must be positive, got %f", c.MaxMappingRangeMM)
	}
	return nil
}
