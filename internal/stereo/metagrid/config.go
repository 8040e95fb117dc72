package metagrid

import (
	"fmt"
	"math"

	"github.com/banshee-data/stereogrid/internal/config"
	"github.com/banshee-data/stereogrid/internal/stereo/grid"
)

// Config provides a configuration builder for Buffer.
type Config struct {
	Grid *grid.Config

	// SpacingFactor is the distance between consecutive grid centres as a
	// fraction of the grid width (default: 0.75).
	SpacingFactor float64

	LocalisationRadiusMM        float64 // default: 100
	LocalisationAngularRangeDeg float64 // default: 5
	LocalisationSamples         int     // lattice points each side of zero (default: 2)

	// TileSizeCells is the tile edge used when retired grids are archived.
	TileSizeCells int
}

// DefaultConfig returns a Config loaded from config/engine.defaults.json.
// Panics if the file cannot be found.
func DefaultConfig() *Config {
	return ConfigFromEngine(config.MustLoadDefaultConfig())
}

// ConfigFromEngine builds a Config from a loaded EngineConfig.
func ConfigFromEngine(cfg *config.EngineConfig) *Config {
	return &Config{
		Grid:                        grid.ConfigFromEngine(cfg),
		SpacingFactor:               cfg.GetGridCentreSpacingFactor(),
		LocalisationRadiusMM:        cfg.GetLocalisationRadiusMM(),
		LocalisationAngularRangeDeg: cfg.GetLocalisationAngularRangeDeg(),
		LocalisationSamples:         cfg.GetLocalisationSamples(),
		TileSizeCells:               32,
	}
}

// WithGrid replaces the per-buffer grid configuration.
func (c *Config) WithGrid(g *grid.Config) *Config {
	c.Grid = g
	return c
}

// WithSpacingFactor sets the grid centre spacing as a fraction of the grid
// width.
func (c *Config) WithSpacingFactor(f float64) *Config {
	c.SpacingFactor = f
	return c
}

// WithLocalisation sets the trial pose lattice.
func (c *Config) WithLocalisation(radiusMM, angularRangeDeg float64, samples int) *Config {
	c.LocalisationRadiusMM = radiusMM
	c.LocalisationAngularRangeDeg = angularRangeDeg
	c.LocalisationSamples = samples
	return c
}

// WithTileSize sets the archive tile edge in cells.
func (c *Config) WithTileSize(cells int) *Config {
	c.TileSizeCells = cells
	return c
}

// CentreSpacingMM returns the distance between consecutive grid centres.
func (c *Config) CentreSpacingMM() float64 {
	return c.SpacingFactor * c.Grid.DimensionMM()
}

// LocaliseParams returns the lattice parameters for grid.Localise.
func (c *Config) LocaliseParams() grid.LocaliseParams {
	return grid.LocaliseParams{
		RadiusMM:        c.LocalisationRadiusMM,
		AngularRangeRad: c.LocalisationAngularRangeDeg * math.Pi / 180,
		Samples:         c.LocalisationSamples,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Grid == nil {
		return fmt.Errorf("Grid config is required")
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.SpacingFactor <= 0 || c.SpacingFactor > 1 {
		return fmt.Errorf("SpacingFactor must be in (0, 1], got %f", c.SpacingFactor)
	}
	if c.LocalisationRadiusMM < 0 {
		return fmt.Errorf("LocalisationRadiusMM must be non-negative, got %f", c.LocalisationRadiusMM)
	}
	if c.LocalisationAngularRangeDeg < 0 || c.LocalisationAngularRangeDeg > 180 {
		return fmt.Errorf("LocalisationAngularRangeDeg must be in [0, 180], got %f", c.LocalisationAngularRangeDeg)
	}
	if c.LocalisationSamples < 0 {
		return fmt.Errorf("LocalisationSamples must be non-negative, got %d", c.LocalisationSamples)
	}
	if c.TileSizeCells < 1 {
		return fmt.Errorf("TileSizeCells must be positive, got %d", c.TileSizeCells)
	}
	return nil
}
