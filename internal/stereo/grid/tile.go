package grid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// ErrMalformedTile is wrapped by every DecodeTile failure.
var ErrMalformedTile = errors.New("malformed grid tile")

// tileNoEvidence marks a voxel without evidence in the occupancy array.
const tileNoEvidence = float32(-1)

const tileHeaderSize = 16

// Tile is a rectangular region of a grid in its persisted form.
//
// TX, TY are inclusive and BX, BY exclusive cell indices. Occupied has one
// entry per column of the box, row-major with y outer. Occupancy holds
// DimVert probabilities for each occupied column in the same order, with
// -1 for voxels without evidence. Colours has one RGB triple for each
// Occupancy entry that is not -1.
type Tile struct {
	TX, TY, BX, BY int
	DimVert        int
	Occupied       []bool
	Occupancy      []float32
	Colours        [][3]uint8
}

// Width returns the box extent in x.
func (t *Tile) Width() int { return t.BX - t.TX }

// Height returns the box extent in y.
func (t *Tile) Height() int { return t.BY - t.TY }

// OccupiedColumns returns the number of columns with evidence.
func (t *Tile) OccupiedColumns() int {
	n := 0
	for _, o := range t.Occupied {
		if o {
			n++
		}
	}
	return n
}

func (t *Tile) check() error {
	if t.BX <= t.TX || t.BY <= t.TY {
		return fmt.Errorf("inverted tile box (%d,%d)-(%d,%d)", t.TX, t.TY, t.BX, t.BY)
	}
	if t.DimVert < 1 {
		return fmt.Errorf("tile vertical dimension must be positive, got %d", t.DimVert)
	}
	if len(t.Occupied) != t.Width()*t.Height() {
		return fmt.Errorf("tile index has %d entries, box needs %d", len(t.Occupied), t.Width()*t.Height())
	}
	if want := t.OccupiedColumns() * t.DimVert; len(t.Occupancy) != want {
		return fmt.Errorf("tile occupancy has %d values, want %d", len(t.Occupancy), want)
	}
	voxels := 0
	for _, p := range t.Occupancy {
		if p != tileNoEvidence {
			voxels++
		}
	}
	if len(t.Colours) != voxels {
		return fmt.Errorf("tile has %d colours for %d voxels", len(t.Colours), voxels)
	}
	return nil
}

// EncodeTile serialises a tile, little-endian:
//
//	int32 tx, ty, bx, by
//	byte[ceil(w*h/8)]          column index, LSB first
//	float32[occupied*dimVert]  probability, -1 = no evidence
//	byte[3*voxels]             RGB per voxel with evidence
func EncodeTile(t *Tile) ([]byte, error) {
	if err := t.check(); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	cells := t.Width() * t.Height()
	buf := make([]byte, 0, tileHeaderSize+(cells+7)/8+4*len(t.Occupancy)+3*len(t.Colours))
	for _, v := range [4]int{t.TX, t.TY, t.BX, t.BY} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
	}

	index := make([]byte, (cells+7)/8)
	for i, o := range t.Occupied {
		if o {
			index[i/8] |= 1 << (i % 8)
		}
	}
	buf = append(buf, index...)

	for _, p := range t.Occupancy {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p))
	}
	for _, c := range t.Colours {
		buf = append(buf, c[0], c[1], c[2])
	}
	return buf, nil
}

// DecodeTile parses a tile encoded by EncodeTile for a grid whose columns
// are dimVert cells tall. Truncated input, inverted boxes, probabilities
// outside [0, 1] and trailing bytes are all rejected.
func DecodeTile(data []byte, dimVert int) (*Tile, error) {
	if dimVert < 1 {
		return nil, fmt.Errorf("%w: vertical dimension %d", ErrMalformedTile, dimVert)
	}
	if len(data) < tileHeaderSize {
		return nil, fmt.Errorf("%w: header truncated at %d bytes", ErrMalformedTile, len(data))
	}
	t := &Tile{
		TX:      int(int32(binary.LittleEndian.Uint32(data[0:]))),
		TY:      int(int32(binary.LittleEndian.Uint32(data[4:]))),
		BX:      int(int32(binary.LittleEndian.Uint32(data[8:]))),
		BY:      int(int32(binary.LittleEndian.Uint32(data[12:]))),
		DimVert: dimVert,
	}
	if t.BX <= t.TX || t.BY <= t.TY {
		return nil, fmt.Errorf("%w: inverted box (%d,%d)-(%d,%d)", ErrMalformedTile, t.TX, t.TY, t.BX, t.BY)
	}
	off := tileHeaderSize

	cells := t.Width() * t.Height()
	indexLen := (cells + 7) / 8
	if len(data) < off+indexLen {
		return nil, fmt.Errorf("%w: index truncated, need %d bytes have %d", ErrMalformedTile, indexLen, len(data)-off)
	}
	t.Occupied = make([]bool, cells)
	occupied := 0
	for i := range t.Occupied {
		if data[off+i/8]&(1<<(i%8)) != 0 {
			t.Occupied[i] = true
			occupied++
		}
	}
	if pad := cells % 8; pad != 0 && data[off+indexLen-1]>>pad != 0 {
		return nil, fmt.Errorf("%w: index padding bits set", ErrMalformedTile)
	}
	off += indexLen

	values := occupied * dimVert
	if len(data) < off+4*values {
		return nil, fmt.Errorf("%w: occupancy truncated, need %d values", ErrMalformedTile, values)
	}
	t.Occupancy = make([]float32, values)
	voxels := 0
	for i := range t.Occupancy {
		p := math.Float32frombits(binary.LittleEndian.Uint32(data[off+4*i:]))
		if p != tileNoEvidence {
			if !(p >= 0 && p <= 1) {
				return nil, fmt.Errorf("%w: occupancy %v out of range", ErrMalformedTile, p)
			}
			voxels++
		}
		t.Occupancy[i] = p
	}
	off += 4 * values

	if len(data) < off+3*voxels {
		return nil, fmt.Errorf("%w: colours truncated, need %d voxels", ErrMalformedTile, voxels)
	}
	t.Colours = make([][3]uint8, voxels)
	for i := range t.Colours {
		copy(t.Colours[i][:], data[off+3*i:])
	}
	off += 3 * voxels

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTile, len(data)-off)
	}
	return t, nil
}

func (g *OccupancyGrid) checkBox(tx, ty, bx, by int) error {
	if tx < 0 || ty < 0 || bx > g.dim || by > g.dim || bx <= tx || by <= ty {
		return fmt.Errorf("tile box (%d,%d)-(%d,%d) outside grid of %d cells", tx, ty, bx, by, g.dim)
	}
	return nil
}

// SaveTile extracts the box (tx, ty) inclusive to (bx, by) exclusive.
// Columns are listed as occupied when any of their cells has evidence.
func (g *OccupancyGrid) SaveTile(tx, ty, bx, by int) (*Tile, error) {
	if err := g.checkBox(tx, ty, bx, by); err != nil {
		return nil, err
	}
	t := &Tile{TX: tx, TY: ty, BX: bx, BY: by, DimVert: g.dimVert}
	t.Occupied = make([]bool, t.Width()*t.Height())
	i := 0
	for y := ty; y < by; y++ {
		for x := tx; x < bx; x++ {
			col := g.columns[y*g.dim+x]
			if columnHasEvidence(col) {
				t.Occupied[i] = true
				for z := range col {
					c := &col[z]
					if !c.hasEvidence() {
						t.Occupancy = append(t.Occupancy, tileNoEvidence)
						continue
					}
					t.Occupancy = append(t.Occupancy, float32(sensormodel.ExactProbability(float64(c.logOdds))))
					t.Colours = append(t.Colours, c.colour)
				}
			}
			i++
		}
	}
	return t, nil
}

// LoadTile overwrites the tile's box with its contents. Columns inside the
// box that the tile does not list are cleared.
func (g *OccupancyGrid) LoadTile(t *Tile) error {
	if err := t.check(); err != nil {
		return fmt.Errorf("load tile: %w", err)
	}
	if t.DimVert != g.dimVert {
		return fmt.Errorf("tile is %d cells tall, grid is %d", t.DimVert, g.dimVert)
	}
	if err := g.checkBox(t.TX, t.TY, t.BX, t.BY); err != nil {
		return err
	}

	i, v, c := 0, 0, 0
	for y := t.TY; y < t.BY; y++ {
		for x := t.TX; x < t.BX; x++ {
			idx := y*g.dim + x
			if !t.Occupied[i] {
				g.columns[idx] = nil
				i++
				continue
			}
			col := newColumn(g.dimVert)
			for z := range col {
				p := t.Occupancy[v]
				v++
				if p == tileNoEvidence {
					continue
				}
				col[z].logOdds = float32(sensormodel.ExactLogOdds(clampProbability(p)))
				col[z].colour = t.Colours[c]
				col[z].coloured = t.Colours[c] != [3]uint8{}
				c++
			}
			g.columns[idx] = col
			i++
		}
	}
	return nil
}

// clampProbability keeps saturated float32 probabilities finite in log-odds.
func clampProbability(p float32) float64 {
	lo := math.Nextafter32(0, 1)
	hi := math.Nextafter32(1, 0)
	if p < lo {
		p = lo
	} else if p > hi {
		p = hi
	}
	return float64(p)
}

func columnHasEvidence(col column) bool {
	for i := range col {
		if col[i].hasEvidence() {
			return true
		}
	}
	return false
}
