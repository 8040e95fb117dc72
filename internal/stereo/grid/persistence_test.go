package grid

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTileStore struct {
	tiles map[string][]TileRecord
	err   error
}

func (m *memTileStore) SaveTile(sessionID string, rec TileRecord) error {
	if m.err != nil {
		return m.err
	}
	if m.tiles == nil {
		m.tiles = map[string][]TileRecord{}
	}
	m.tiles[sessionID] = append(m.tiles[sessionID], rec)
	return nil
}

func (m *memTileStore) LoadTiles(sessionID string, centre r3.Vector) ([]TileRecord, error) {
	var out []TileRecord
	for _, rec := range m.tiles[sessionID] {
		if rec.Centre == centre {
			out = append(out, rec)
		}
	}
	return out, m.err
}

func TestPersistRestore(t *testing.T) {
	t.Parallel()
	src := newTestGrid(t)
	src.SetPosition(r3.Vector{X: 500})
	shifted := testCam.TrialPose(r3.Vector{}, 500, 0, 0)
	for i := 0; i < 3; i++ {
		src.Insert(testRay([3]uint8{10, 20, 30}).Translate(r3.Vector{X: 500}), shifted, Mapping)
	}

	store := &memTileStore{}
	n, err := src.Persist(store, "session-a", 32)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Less(t, n, 16, "empty tiles are skipped")

	dst := newTestGrid(t)
	dst.SetPosition(r3.Vector{X: 500})
	loaded, err := dst.Restore(store, "session-a")
	require.NoError(t, err)
	assert.Equal(t, n, loaded)
	assert.Equal(t, src.Stats(), dst.Stats())

	x, y, z, _ := src.CellIndex(r3.Vector{X: 500, Y: 1000})
	assert.InDelta(t, src.GetCellProbability(x, y, z), dst.GetCellProbability(x, y, z), 1e-3)

	t.Run("other centre sees nothing", func(t *testing.T) {
		other := newTestGrid(t)
		loaded, err := other.Restore(store, "session-a")
		require.NoError(t, err)
		assert.Zero(t, loaded)
	})

	t.Run("cell size mismatch skipped", func(t *testing.T) {
		m := testModel(t)
		coarse, err := New(DefaultConfig().WithCellSize(64), m)
		require.NoError(t, err)
		coarse.SetPosition(r3.Vector{X: 500})
		loaded, err := coarse.Restore(store, "session-a")
		require.NoError(t, err)
		assert.Zero(t, loaded)
	})
}

func TestPersistErrors(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	g.Insert(testRay([3]uint8{}), testCam, Mapping)

	_, err := g.Persist(&memTileStore{}, "s", 0)
	assert.Error(t, err)

	boom := errors.New("disk full")
	_, err = g.Persist(&memTileStore{err: boom}, "s", 32)
	assert.ErrorIs(t, err, boom)

	n, err := g.Persist(nil, "s", 32)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
