// Package metagrid keeps two local occupancy grids along a robot path and
// hands over between them as the robot moves.
//
// One buffer is active and centred on the current waypoint; the other is
// centred on the next one. When the robot gets closer to the inactive
// buffer the roles swap, and the retired buffer is cleared, re-anchored on
// the following waypoint and refilled on the next UpdateMap.
package metagrid

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/disparitylog"
	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
	"github.com/banshee-data/stereogrid/internal/stereo/geometry"
	"github.com/banshee-data/stereogrid/internal/stereo/grid"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// ObservationSource yields the recorded observations for a path sample.
// disparitylog.Replayer implements it.
type ObservationSource interface {
	PathSamples() int
	Observations(pathIndex int) ([]*disparitylog.Record, error)
}

var _ ObservationSource = (*disparitylog.Replayer)(nil)

// Publisher receives every localisation result.
type Publisher interface {
	PublishPose(entry LogEntry) error
}

// Observation is the rays seen by each camera at one pose.
type Observation struct {
	Position r3.Vector
	Rays     [][]evidence.Ray
	Cameras  []geometry.CameraPose
}

// Buffer is the two-grid metagrid.
type Buffer struct {
	cfg    *Config
	grids  [2]*grid.OccupancyGrid
	stereo evidence.StereoModel
	robot  geometry.RobotGeometry

	current     int
	centres     []r3.Vector
	gridIndex   int
	initialised bool
	pending     [2]bool
	swaps       int

	path      []r3.Vector
	source    ObservationSource
	publisher Publisher

	archive        grid.TileStore
	archiveSession string
	restore        grid.TileStore
	restoreSession string

	log []LogEntry
}

// New builds a metagrid with two empty grids sharing one sensor model.
func New(cfg *Config, model *sensormodel.Model, robot geometry.RobotGeometry) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metagrid config: %w", err)
	}
	if len(robot.Cameras) == 0 {
		return nil, fmt.Errorf("robot geometry has no cameras")
	}
	b := &Buffer{
		cfg:    cfg,
		stereo: evidence.StereoModel{Camera: model.Camera, MaxRangeMM: cfg.Grid.MaxMappingRangeMM},
		robot:  robot,
	}
	for i := range b.grids {
		g, err := grid.New(cfg.Grid, model)
		if err != nil {
			return nil, err
		}
		b.grids[i] = g
	}
	return b, nil
}

// SetPath samples grid centres along the path and remembers the path so
// UpdateMap can find the observations taken inside each grid.
func (b *Buffer) SetPath(path []r3.Vector) {
	b.path = append([]r3.Vector(nil), path...)
	b.SetGridCentres(SampleCentres(path, b.cfg.CentreSpacingMM()))
}

// SetGridCentres replaces the waypoint list and resets the handover state.
// The next MoveToNextLocalGrid positions both buffers afresh.
func (b *Buffer) SetGridCentres(centres []r3.Vector) {
	b.centres = append([]r3.Vector(nil), centres...)
	b.gridIndex = 0
	b.current = 0
	b.initialised = false
	b.pending = [2]bool{}
	diagf("%d grid centres, spacing %.0fmm", len(b.centres), b.cfg.CentreSpacingMM())
}

// SetSource sets where UpdateMap replays observations from.
func (b *Buffer) SetSource(src ObservationSource) { b.source = src }

// SetPublisher sets the receiver of localisation results.
func (b *Buffer) SetPublisher(p Publisher) { b.publisher = p }

// SetArchive makes retired grids persist to store before they are
// cleared.
func (b *Buffer) SetArchive(store grid.TileStore, sessionID string) {
	b.archive = store
	b.archiveSession = sessionID
}

// SetRestore makes UpdateMap load grids from a stored map session when
// there is no replay source.
func (b *Buffer) SetRestore(store grid.TileStore, sessionID string) {
	b.restore = store
	b.restoreSession = sessionID
}

// GridCentres returns the waypoint list.
func (b *Buffer) GridCentres() []r3.Vector { return b.centres }

// GridIndex returns the waypoint the active buffer is centred on.
func (b *Buffer) GridIndex() int { return b.gridIndex }

// CurrentBufferIndex returns which buffer (0 or 1) is active.
func (b *Buffer) CurrentBufferIndex() int { return b.current }

// Active returns the active grid.
func (b *Buffer) Active() *grid.OccupancyGrid { return b.grids[b.current] }

// Grid returns buffer i.
func (b *Buffer) Grid(i int) *grid.OccupancyGrid { return b.grids[i] }

// Swaps returns how many handovers have happened.
func (b *Buffer) Swaps() int { return b.swaps }

// UpdatePending reports whether either buffer still needs refilling.
func (b *Buffer) UpdatePending() bool { return b.pending[0] || b.pending[1] }

func (b *Buffer) lastCentre() int { return len(b.centres) - 1 }

func (b *Buffer) nextCentre() int {
	if b.gridIndex+1 > b.lastCentre() {
		return b.lastCentre()
	}
	return b.gridIndex + 1
}

// MoveToNextLocalGrid checks the robot position against both buffers and
// swaps them when the inactive one is closer. It reports whether the
// buffers need refilling. The first call after SetPath positions both
// buffers.
func (b *Buffer) MoveToNextLocalGrid(pos r3.Vector) bool {
	if len(b.centres) == 0 {
		return false
	}
	if !b.initialised {
		b.initialised = true
		b.gridIndex = 0
		b.current = 0
		b.grids[0].Reposition(b.centres[0])
		b.grids[1].Reposition(b.centres[b.nextCentre()])
		b.pending = [2]bool{true, true}
		return true
	}

	active := b.grids[b.current]
	other := b.grids[1-b.current]
	if horizontalDist2(pos, other.Position()) >= horizontalDist2(pos, active.Position()) {
		return false
	}

	retired := b.current
	b.current = 1 - b.current
	if b.gridIndex < b.lastCentre() {
		b.gridIndex++
	}
	b.retire(retired)
	b.grids[retired].Reposition(b.centres[b.nextCentre()])
	b.pending[retired] = true
	b.swaps++
	diagf("swap %d at (%.0f, %.0f): buffer %d active on centre %d, buffer %d re-anchored to %v",
		b.swaps, pos.X, pos.Y, b.current, b.gridIndex, retired, b.grids[retired].Position())
	return true
}

func (b *Buffer) retire(i int) {
	if b.archive == nil {
		return
	}
	n, err := b.grids[i].Persist(b.archive, b.archiveSession, b.cfg.TileSizeCells)
	if err != nil {
		opsf("failed to archive grid at %v: %v", b.grids[i].Position(), err)
		return
	}
	diagf("archived %d tiles from grid at %v", n, b.grids[i].Position())
}

// Archive persists both buffers. When both sit on the final waypoint only
// the active one, which has seen more of the path, is written.
func (b *Buffer) Archive() error {
	if b.archive == nil {
		return nil
	}
	active, other := b.grids[b.current], b.grids[1-b.current]
	if _, err := active.Persist(b.archive, b.archiveSession, b.cfg.TileSizeCells); err != nil {
		return err
	}
	if other.Position() == active.Position() {
		return nil
	}
	_, err := other.Persist(b.archive, b.archiveSession, b.cfg.TileSizeCells)
	return err
}

func horizontalDist2(a, b r3.Vector) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// UpdateMap refills every pending buffer. Observations are read
// synchronously, then both buffers are filled concurrently. Unreadable
// path samples are logged and skipped. A failed restore is returned, but
// the buffer is not retried until its next reposition.
func (b *Buffer) UpdateMap() error {
	defer func() { b.pending = [2]bool{} }()

	var jobs [2][]Observation
	for i, g := range b.grids {
		if !b.pending[i] {
			continue
		}
		switch {
		case b.source != nil:
			jobs[i] = b.observationsNear(g.Position())
		case b.restore != nil:
			n, err := g.Restore(b.restore, b.restoreSession)
			if err != nil {
				return fmt.Errorf("failed to restore grid at %v: %w", g.Position(), err)
			}
			diagf("restored %d tiles into buffer %d", n, i)
		}
	}

	var (
		wg      sync.WaitGroup
		results [2]grid.InsertResult
	)
	for i := range b.grids {
		if !b.pending[i] || len(jobs[i]) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, o := range jobs[i] {
				r := b.grids[i].AddObservation(o.Rays, o.Cameras, false)
				results[i].OccupiedDelta += r.OccupiedDelta
				results[i].NewCells += r.NewCells
			}
		}(i)
	}
	wg.Wait()

	for i := range b.grids {
		if b.pending[i] {
			diagf("buffer %d refilled from %d observations: %d new cells, %d occupied",
				i, len(jobs[i]), results[i].NewCells, results[i].OccupiedDelta)
		}
	}
	return nil
}

// observationsNear replays every path sample whose position lies inside
// the horizontal extent of a grid centred on centre. A sample that fails
// to read contributes only the records read before the failure.
func (b *Buffer) observationsNear(centre r3.Vector) []Observation {
	half := b.cfg.Grid.DimensionMM() / 2
	n := len(b.path)
	if s := b.source.PathSamples(); s < n {
		n = s
	}
	var out []Observation
	for i := 0; i < n; i++ {
		p := b.path[i]
		if p.X < centre.X-half || p.X > centre.X+half || p.Y < centre.Y-half || p.Y > centre.Y+half {
			continue
		}
		recs, err := b.source.Observations(i)
		if err != nil {
			opsf("path sample %d: kept %d records: %v", i, len(recs), err)
		}
		for _, rec := range recs {
			if o, ok := b.Observe(rec); ok {
				out = append(out, o)
			}
		}
	}
	tracef("%d observations near %v", len(out), centre)
	return out
}

// Observe resolves the camera poses for a record and turns its features
// into rays. It reports false if the record names an unknown camera.
func (b *Buffer) Observe(rec *disparitylog.Record) (Observation, bool) {
	cams := b.robot.Resolve(rec.BodyPose(), rec.HeadOrientation())
	if rec.CameraIndex < 0 || rec.CameraIndex >= len(cams) {
		opsf("record at %d names camera %d, robot has %d", rec.TimestampNs, rec.CameraIndex, len(cams))
		return Observation{}, false
	}
	rays := make([][]evidence.Ray, rec.CameraIndex+1)
	rays[rec.CameraIndex] = b.stereo.CreateRays(rec.Features, cams[rec.CameraIndex])
	return Observation{
		Position: rec.BodyPose().Position,
		Rays:     rays,
		Cameras:  cams,
	}, true
}

// Map inserts an observation into both buffers concurrently.
func (b *Buffer) Map(o Observation) [2]grid.InsertResult {
	var (
		wg      sync.WaitGroup
		results [2]grid.InsertResult
	)
	for i := range b.grids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.grids[i].AddObservation(o.Rays, o.Cameras, false)
		}(i)
	}
	wg.Wait()
	return results
}
