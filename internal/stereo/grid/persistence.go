package grid

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// TileRecord is one encoded tile tagged with the grid placement it was
// cut from.
type TileRecord struct {
	Centre     r3.Vector
	CellSizeMM float64
	TX, TY     int
	BX, BY     int
	Data       []byte
}

// TileStore persists encoded tiles. Implemented by mapdb.MapDB.
type TileStore interface {
	SaveTile(sessionID string, rec TileRecord) error
	LoadTiles(sessionID string, centre r3.Vector) ([]TileRecord, error)
}

// Persist cuts the grid into square tiles of tileSize cells and saves every
// tile holding evidence. Returns the number of tiles written.
func (g *OccupancyGrid) Persist(store TileStore, sessionID string, tileSize int) (int, error) {
	if g == nil || store == nil {
		return 0, nil
	}
	if tileSize < 1 {
		return 0, fmt.Errorf("tile size must be positive, got %d", tileSize)
	}
	written := 0
	for ty := 0; ty < g.dim; ty += tileSize {
		for tx := 0; tx < g.dim; tx += tileSize {
			bx, by := min(tx+tileSize, g.dim), min(ty+tileSize, g.dim)
			if !g.boxHasEvidence(tx, ty, bx, by) {
				continue
			}
			tile, err := g.SaveTile(tx, ty, bx, by)
			if err != nil {
				return written, err
			}
			data, err := EncodeTile(tile)
			if err != nil {
				return written, err
			}
			rec := TileRecord{Centre: g.centre, CellSizeMM: g.cellSize, TX: tx, TY: ty, BX: bx, BY: by, Data: data}
			if err := store.SaveTile(sessionID, rec); err != nil {
				return written, fmt.Errorf("save tile (%d,%d): %w", tx, ty, err)
			}
			written++
		}
	}
	diagf("persisted %d tiles for session %s at (%.0f, %.0f)", written, sessionID, g.centre.X, g.centre.Y)
	return written, nil
}

// Restore loads every stored tile for the grid's current centre. Tiles
// recorded with a different cell size are skipped.
func (g *OccupancyGrid) Restore(store TileStore, sessionID string) (int, error) {
	if g == nil || store == nil {
		return 0, nil
	}
	recs, err := store.LoadTiles(sessionID, g.centre)
	if err != nil {
		return 0, fmt.Errorf("load tiles: %w", err)
	}
	loaded := 0
	for _, rec := range recs {
		if rec.CellSizeMM != g.cellSize {
			opsf("skipping tile (%d,%d): cell size %.1f does not match grid %.1f", rec.TX, rec.TY, rec.CellSizeMM, g.cellSize)
			continue
		}
		tile, err := DecodeTile(rec.Data, g.dimVert)
		if err != nil {
			return loaded, fmt.Errorf("decode tile (%d,%d): %w", rec.TX, rec.TY, err)
		}
		if err := g.LoadTile(tile); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

func (g *OccupancyGrid) boxHasEvidence(tx, ty, bx, by int) bool {
	for y := ty; y < by; y++ {
		for x := tx; x < bx; x++ {
			if columnHasEvidence(g.columns[y*g.dim+x]) {
				return true
			}
		}
	}
	return false
}
