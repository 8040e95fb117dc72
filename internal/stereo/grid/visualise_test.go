package grid

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

func TestExtraction(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	for i := 0; i < 4; i++ {
		g.Insert(testRay([3]uint8{1, 2, 3}), testCam, Mapping)
	}
	x, y, z, _ := g.CellIndex(r3.Vector{Y: 1000})

	stats := g.Stats()
	assert.Greater(t, stats.AllocatedColumns, 0)
	assert.GreaterOrEqual(t, stats.EvidenceCells, stats.OccupiedCells)
	assert.Greater(t, stats.OccupiedCells, 0)

	voxels := g.OccupiedVoxels(0.5)
	require.NotEmpty(t, voxels)
	assert.GreaterOrEqual(t, len(voxels), stats.OccupiedCells)
	found := false
	for _, v := range voxels {
		assert.GreaterOrEqual(t, v.Probability, 0.5)
		if v.X == x && v.Y == y && v.Z == z {
			found = true
			assert.Equal(t, [3]uint8{1, 2, 3}, v.Colour)
			assert.InDelta(t, 1008, v.Position.Y, 1e-9)
		}
	}
	assert.True(t, found)

	hm := g.HeightMap(0.5)
	require.Len(t, hm, g.DimensionCells())
	assert.InDelta(t, float64(z+1)*g.CellSizeMM(), hm[y][x], 1e-9)
	assert.Equal(t, -1.0, hm[0][0])

	slice := g.ColumnSlice(z)
	assert.Greater(t, slice[y][x], 0.5)
	assert.Equal(t, sensormodel.NoOccupancyEvidence, slice[0][0])
}
