package mapdb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereogrid/internal/stereo/grid"
)

func openTestDB(t *testing.T) *MapDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "map.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigrates(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(), "re-running is a no-op")
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "map.db")
	db, err := Open(path)
	require.NoError(t, err)
	s, err := db.CreateSession("corridor", "map", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "corridor", got.Name)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	a, err := db.CreateSession("lab", "map", map[string]interface{}{"cell_size_mm": 32.0})
	require.NoError(t, err)
	b, err := db.CreateSession("lab", "localise", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := db.GetSession(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "map", got.Mode)
	assert.Equal(t, 32.0, got.Params["cell_size_mm"])
	assert.Equal(t, a.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())

	latest, err := db.LatestSession("lab", "localise")
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)
	latest, err = db.LatestSession("lab", "map")
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)
	_, err = db.LatestSession("other", "map")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	all, err := db.ListSessions()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = db.GetSession("missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestTileStore(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("tiles", "map", nil)
	require.NoError(t, err)

	centre := r3.Vector{X: 1000, Y: -500}
	rec := grid.TileRecord{Centre: centre, CellSizeMM: 32, TX: 0, TY: 32, BX: 32, BY: 64, Data: []byte{1, 2, 3, 4}}
	require.NoError(t, db.SaveTile(s.ID, rec))
	require.NoError(t, db.SaveTile(s.ID, grid.TileRecord{Centre: centre, CellSizeMM: 32, TX: 32, TY: 32, BX: 64, BY: 64, Data: []byte{9}}))
	require.NoError(t, db.SaveTile(s.ID, grid.TileRecord{Centre: r3.Vector{}, CellSizeMM: 32, BX: 1, BY: 1, Data: []byte{7}}))

	// Same origin replaces.
	rec.Data = []byte{5, 6}
	require.NoError(t, db.SaveTile(s.ID, rec))

	tiles, err := db.LoadTiles(s.ID, centre)
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, []byte{5, 6}, tiles[0].Data)
	assert.Equal(t, 32, tiles[1].TX)
	assert.Equal(t, centre, tiles[0].Centre)

	centres, err := db.TileCentres(s.ID)
	require.NoError(t, err)
	assert.Equal(t, []r3.Vector{{}, centre}, centres)

	other, err := db.LoadTiles("nobody", centre)
	require.NoError(t, err)
	assert.Empty(t, other)

	err = db.SaveTile("nobody", rec)
	assert.Error(t, err, "foreign key enforced")
}

func TestGridPersistRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("grid", "map", nil)
	require.NoError(t, err)

	tile := &grid.Tile{TX: 0, TY: 0, BX: 2, BY: 1, DimVert: 1, Occupied: []bool{true, false}, Occupancy: []float32{0.8}, Colours: [][3]uint8{{1, 1, 1}}}
	data, err := grid.EncodeTile(tile)
	require.NoError(t, err)
	require.NoError(t, db.SaveTile(s.ID, grid.TileRecord{CellSizeMM: 32, BX: 2, BY: 1, Data: data}))

	tiles, err := db.LoadTiles(s.ID, r3.Vector{})
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	decoded, err := grid.DecodeTile(tiles[0].Data, 1)
	require.NoError(t, err)
	assert.Equal(t, tile.Occupancy, decoded.Occupancy)
}

func TestLocalisationLog(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("loc", "localise", nil)
	require.NoError(t, err)

	score := 3.5
	require.NoError(t, db.InsertLocalisation(s.ID, LocalisationRecord{PathIndex: 1, GridIndex: 0, OffsetX: 10, Score: &score, Swapped: true}))
	require.NoError(t, db.InsertLocalisation(s.ID, LocalisationRecord{PathIndex: 0, GridIndex: 0}))

	got, err := db.Localisations(s.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].PathIndex)
	assert.Nil(t, got[0].Score)
	assert.False(t, got[0].Swapped)
	require.NotNil(t, got[1].Score)
	assert.Equal(t, 3.5, *got[1].Score)
	assert.True(t, got[1].Swapped)
	assert.Equal(t, 10.0, got[1].OffsetX)
}

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()
	in := []byte("occupancy occupancy occupancy")
	blob, err := compress(in)
	require.NoError(t, err)
	out, err := decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decompress(nil)
	assert.Error(t, err)
}
