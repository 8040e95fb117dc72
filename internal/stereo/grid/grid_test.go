package grid

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

func testModel(t *testing.T) *sensormodel.Model {
	t.Helper()
	m, err := sensormodel.DefaultConfig().Build()
	require.NoError(t, err)
	return m
}

func newTestGrid(t *testing.T) *OccupancyGrid {
	t.Helper()
	g, err := New(DefaultConfig(), testModel(t))
	require.NoError(t, err)
	return g
}

// testCam is a 100mm stereo pair at the origin looking along +y.
var testCam = geometry.CameraPose{
	Left:     r3.Vector{X: -50},
	Right:    r3.Vector{X: 50},
	Rotation: geometry.Orientation{}.Quaternion(),
}

// testRay is occupied from 900mm to 1100mm straight ahead. Sample 3 of its
// 6 occupied steps lands exactly on y=1000.
func testRay(colour [3]uint8) evidence.Ray {
	return evidence.Ray{
		Vertices:     [2]r3.Vector{{Y: 900}, {Y: 1100}},
		Width:        64,
		FattestPoint: 0.5,
		Disparity:    20,
		Colour:       colour,
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	m := testModel(t)

	_, err := New(nil, m)
	assert.Error(t, err)
	_, err = New(DefaultConfig().WithDimensions(2, 1), m)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestFreshGridHasNoEvidence(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)

	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetProbability(0, 0))
	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetProbability(500, -700))
	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetCellProbability(10, 10, 10))
	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetCellProbability(-1, 10, 10))
	assert.Equal(t, Stats{}, g.Stats())
}

func TestUntouchedCellInAllocatedColumn(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	g.Insert(testRay([3]uint8{}), testCam, Mapping)

	x, y, z, ok := g.CellIndex(r3.Vector{Y: 1000})
	require.True(t, ok)
	require.NotEqual(t, sensormodel.NoOccupancyEvidence, g.GetCellLogOdds(x, y, z))

	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetCellLogOdds(x, y, 0))
	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetCellProbability(x, y, 0))
	assert.Equal(t, sensormodel.NoOccupancyEvidence, g.GetCellLogOdds(x, y, g.DimensionCellsVertical()))
}

func TestCellIndexing(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)

	x, y, z, ok := g.CellIndex(r3.Vector{})
	require.True(t, ok)
	assert.Equal(t, []int{64, 64, 32}, []int{x, y, z})

	_, _, _, ok = g.CellIndex(r3.Vector{X: 2048})
	assert.False(t, ok, "right edge is exclusive")

	g.SetPosition(r3.Vector{X: 1000})
	x, _, _, ok = g.CellIndex(r3.Vector{X: 1000})
	require.True(t, ok)
	assert.Equal(t, 64, x)
	assert.Equal(t, r3.Vector{X: 1000}, g.Position())

	c := g.CellCentre(64, 64, 32)
	assert.InDelta(t, 1016, c.X, 1e-9)
	assert.InDelta(t, 16, c.Z, 1e-9)
}

func TestRepeatedMappingIncreasesLogOdds(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	x, y, z, ok := g.CellIndex(r3.Vector{Y: 1000})
	require.True(t, ok)

	prev := math.Inf(-1)
	for i := 0; i < 6; i++ {
		g.Insert(testRay([3]uint8{}), testCam, Mapping)
		lo := g.GetCellLogOdds(x, y, z)
		require.NotEqual(t, sensormodel.NoOccupancyEvidence, lo)
		assert.Greater(t, lo, prev, "insertion %d", i)
		assert.Greater(t, lo, 0.0)
		prev = lo
	}
	assert.Greater(t, g.GetCellProbability(x, y, z), 0.5)
	assert.Greater(t, g.GetProbability(0, 1000), 0.0)
}

func TestVacancyLowersOccupiedCell(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	x, y, z, _ := g.CellIndex(r3.Vector{Y: 1000})

	g.Insert(testRay([3]uint8{}), testCam, Mapping)
	before := g.GetCellLogOdds(x, y, z)
	require.Greater(t, before, 0.0)

	// A feature further away seen straight down the same axis: its vacancy
	// passes run through the occupied cell.
	axisCam := geometry.CameraPose{Rotation: testCam.Rotation}
	far := evidence.Ray{
		Vertices:     [2]r3.Vector{{Y: 1500}, {Y: 1700}},
		Width:        64,
		FattestPoint: 0.5,
		Disparity:    20,
	}
	g.Insert(far, axisCam, Mapping)

	after := g.GetCellLogOdds(x, y, z)
	assert.Less(t, after, before)
}

func TestTurboModeSkipsRightVacancy(t *testing.T) {
	t.Parallel()
	m := testModel(t)
	full, err := New(DefaultConfig(), m)
	require.NoError(t, err)
	turbo, err := New(DefaultConfig().WithTurboMode(true), m)
	require.NoError(t, err)

	full.Insert(testRay([3]uint8{}), testCam, Mapping)
	turbo.Insert(testRay([3]uint8{}), testCam, Mapping)

	assert.Greater(t, full.Stats().EvidenceCells, turbo.Stats().EvidenceCells)
}

func TestRayWidthDiamond(t *testing.T) {
	t.Parallel()
	const steps, rayWidth = 20, 4

	assert.Equal(t, 0, RayWidthAt(0, steps, 10, rayWidth, false))
	assert.Equal(t, 0, RayWidthAt(steps, steps, 10, rayWidth, false))
	assert.Equal(t, rayWidth, RayWidthAt(steps/2, steps, 10, rayWidth, false))
	assert.Equal(t, 2, RayWidthAt(5, steps, 10, rayWidth, false))
	assert.Equal(t, 2, RayWidthAt(15, steps, 10, rayWidth, false))

	t.Run("infinite tail holds width", func(t *testing.T) {
		for s := 10; s <= steps; s++ {
			assert.Equal(t, rayWidth, RayWidthAt(s, steps, 10, rayWidth, true))
		}
		assert.Equal(t, 2, RayWidthAt(5, steps, 10, rayWidth, true))
	})

	t.Run("vacancy grows linearly", func(t *testing.T) {
		prev := 0
		for s := 0; s < steps; s++ {
			w := RayWidthAt(s, steps, steps, rayWidth, false)
			assert.GreaterOrEqual(t, w, prev)
			prev = w
		}
		assert.Equal(t, rayWidth, prev)
	})

	t.Run("degenerate", func(t *testing.T) {
		assert.Equal(t, 0, RayWidthAt(3, 0, 0, rayWidth, false))
		assert.Equal(t, 0, RayWidthAt(3, steps, 10, 0, false))
		assert.Equal(t, 0, RayWidthAt(0, steps, 0, rayWidth, false))
	})
}

func TestColourBlendsTwoValues(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	x, y, z, _ := g.CellIndex(r3.Vector{Y: 1000})

	g.Insert(testRay([3]uint8{100, 100, 100}), testCam, Mapping)
	c, ok := g.GetCellColour(x, y, z)
	require.True(t, ok)
	assert.Equal(t, [3]uint8{100, 100, 100}, c)

	g.Insert(testRay([3]uint8{200, 0, 50}), testCam, Mapping)
	c, _ = g.GetCellColour(x, y, z)
	assert.Equal(t, [3]uint8{150, 50, 75}, c)
}

func TestWalkStopsAtGridEdge(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)

	// Starts inside, runs out past the +y edge at 2048mm.
	ray := evidence.Ray{
		Vertices:     [2]r3.Vector{{Y: 1900}, {Y: 2400}},
		Width:        64,
		FattestPoint: 0.5,
		Disparity:    10,
	}
	res := g.Insert(ray, testCam, Mapping)
	assert.Greater(t, res.NewCells, 0)
	for _, v := range g.OccupiedVoxels(0) {
		assert.Less(t, v.Y, g.DimensionCells()-1)
	}
}

func TestClearDropsEverything(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	g.Insert(testRay([3]uint8{}), testCam, Mapping)
	require.NotZero(t, g.Stats().AllocatedColumns)

	g.Reposition(r3.Vector{X: 3000})
	assert.Equal(t, Stats{}, g.Stats())
	assert.Equal(t, r3.Vector{X: 3000}, g.Position())
}
