package metagrid

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/stereogrid/internal/stereo/disparitylog"
	"github.com/banshee-data/stereogrid/internal/stereo/grid"
	"github.com/banshee-data/stereogrid/internal/stereo/sensormodel"
)

// LogEntry is one localisation result.
type LogEntry struct {
	PathIndex int             `json:"path_index"`
	GridIndex int             `json:"grid_index"`
	Position  r3.Vector       `json:"position"`
	Offset    grid.PoseOffset `json:"offset"`
	Score     float64         `json:"score"`
	Matched   bool            `json:"matched"`
	Swapped   bool            `json:"swapped"`
	Evaluated int             `json:"evaluated"`
}

// Corrected returns the position with the best offset applied.
func (e LogEntry) Corrected() r3.Vector {
	return r3.Vector{X: e.Position.X + e.Offset.X, Y: e.Position.Y + e.Offset.Y, Z: e.Position.Z}
}

// Localise matches an observation against the active grid. It first
// checks for a handover and refills pending buffers, then searches the
// trial pose lattice around the observation position. The result is
// appended to the log and published. Refill and publish failures are
// logged; the observation is still localised against what is loaded.
func (b *Buffer) Localise(pathIndex int, o Observation) LogEntry {
	swapped := b.MoveToNextLocalGrid(o.Position)
	if b.UpdatePending() {
		if err := b.UpdateMap(); err != nil {
			opsf("localising path sample %d against a partial map: %v", pathIndex, err)
		}
	}

	res := b.Active().Localise(o.Rays, o.Cameras, o.Position, b.cfg.LocaliseParams())
	entry := LogEntry{
		PathIndex: pathIndex,
		GridIndex: b.gridIndex,
		Position:  o.Position,
		Offset:    res.Offset,
		Score:     res.Score,
		Matched:   res.Score != sensormodel.NoOccupancyEvidence,
		Swapped:   swapped,
		Evaluated: res.Evaluated,
	}
	b.log = append(b.log, entry)

	if b.publisher != nil {
		if err := b.publisher.PublishPose(entry); err != nil {
			opsf("failed to publish pose for path sample %d: %v", pathIndex, err)
		}
	}
	return entry
}

// LocaliseRecord localises a recorded observation.
func (b *Buffer) LocaliseRecord(pathIndex int, rec *disparitylog.Record) (LogEntry, error) {
	o, ok := b.Observe(rec)
	if !ok {
		return LogEntry{}, fmt.Errorf("record at %d has no usable camera", rec.TimestampNs)
	}
	return b.Localise(pathIndex, o), nil
}

// Log returns the localisation results so far.
func (b *Buffer) Log() []LogEntry {
	return append([]LogEntry(nil), b.log...)
}

// WriteLog writes the localisation log as JSON lines.
func (b *Buffer) WriteLog(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range b.log {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// SampleCentres picks grid centres along a path: the first position, then
// every position at least spacing further along the path than the
// previous centre, then the final position.
func SampleCentres(path []r3.Vector, spacing float64) []r3.Vector {
	if len(path) == 0 {
		return nil
	}
	centres := []r3.Vector{path[0]}
	travelled := 0.0
	for i := 1; i < len(path); i++ {
		travelled += path[i].Sub(path[i-1]).Norm()
		if travelled >= spacing {
			centres = append(centres, path[i])
			travelled = 0
		}
	}
	last := path[len(path)-1]
	if centres[len(centres)-1] != last {
		centres = append(centres, last)
	}
	return centres
}

// MaxCorrection returns the largest horizontal offset among matched
// results.
func MaxCorrection(entries []LogEntry) float64 {
	worst := 0.0
	for _, e := range entries {
		if !e.Matched {
			continue
		}
		worst = math.Max(worst, math.Hypot(e.Offset.X, e.Offset.Y))
	}
	return worst
}
