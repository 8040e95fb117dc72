package disparitylog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// ChunkSize is the number of records per chunk file.
const ChunkSize = 1000

const (
	headerFile = "header.json"
	indexFile  = "index.bin"
	// PathFile is the recorded path, one position per path sample.
	PathFile  = "path.json"
	recordDir = "records"
)

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version      string `json:"version"`
	RunID        string `json:"run_id"`
	CreatedNs    int64  `json:"created_ns"`
	TotalRecords uint64 `json:"total_records"`
	PathSamples  int    `json:"path_samples"`
	StartNs      int64  `json:"start_ns"`
	EndNs        int64  `json:"end_ns"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	RecordID    uint64
	TimestampNs int64
	PathIndex   uint32
	ChunkID     uint32
	Offset      uint32
}

func chunkPath(base string, chunk int) string {
	return filepath.Join(base, recordDir, fmt.Sprintf("chunk_%04d.bin", chunk))
}

// Recorder writes Records to a log directory.
type Recorder struct {
	basePath string

	header       LogHeader
	index        []IndexEntry
	path         []r3.Vector
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	recordCount uint64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing to basePath. If basePath is
// empty a timestamped directory is created in the temp dir.
func NewRecorder(basePath string) (*Recorder, error) {
	runID := uuid.NewString()
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("disparity_%d_%s", time.Now().Unix(), runID[:8]))
	}
	if err := os.MkdirAll(filepath.Join(basePath, recordDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Recorder{
		basePath:     basePath,
		currentChunk: -1,
		header: LogHeader{
			Version:   "1.0",
			RunID:     runID,
			CreatedNs: time.Now().UnixNano(),
		},
	}, nil
}

// SetPath sets the positions written to path.json on Close.
func (r *Recorder) SetPath(positions []r3.Vector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = append([]r3.Vector(nil), positions...)
}

// Record appends rec, observed at path sample pathIndex.
func (r *Recorder) Record(pathIndex int, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if pathIndex < 0 {
		return fmt.Errorf("negative path index %d", pathIndex)
	}

	if r.header.StartNs == 0 {
		r.header.StartNs = rec.TimestampNs
	}
	r.header.EndNs = rec.TimestampNs

	chunkIdx := int(r.recordCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		RecordID:    r.recordCount,
		TimestampNs: rec.TimestampNs,
		PathIndex:   uint32(pathIndex),
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})
	if pathIndex+1 > r.header.PathSamples {
		r.header.PathSamples = pathIndex + 1
	}

	r.chunkOffset += uint32(4 + len(data))
	r.recordCount++
	return nil
}

func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}
	f, err := os.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	return nil
}

// Close finalises the log and writes the header, index and path.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return fmt.Errorf("failed to close chunk: %w", err)
		}
	}

	r.header.TotalRecords = r.recordCount
	if len(r.path) > r.header.PathSamples {
		r.header.PathSamples = len(r.path)
	}
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, headerFile), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	f, err := os.Create(filepath.Join(r.basePath, indexFile))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()
	for _, entry := range r.index {
		if err := binary.Write(f, binary.LittleEndian, entry); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}

	if r.path != nil {
		if err := SavePath(filepath.Join(r.basePath, PathFile), r.path); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string { return r.basePath }

// RecordCount returns the number of records written.
func (r *Recorder) RecordCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordCount
}

// Replayer reads Records from a log directory.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry
	byPath   map[uint32][]int

	current      int
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
		byPath:       make(map[uint32][]int),
	}

	headerData, err := os.ReadFile(filepath.Join(basePath, headerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f, err := os.Open(filepath.Join(basePath, indexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	r.index = make([]IndexEntry, 0, r.header.TotalRecords)
	for {
		var entry IndexEntry
		if err := binary.Read(f, binary.LittleEndian, &entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read index entry %d: %w", len(r.index), err)
		}
		r.byPath[entry.PathIndex] = append(r.byPath[entry.PathIndex], len(r.index))
		r.index = append(r.index, entry)
	}
	if uint64(len(r.index)) != r.header.TotalRecords {
		return nil, fmt.Errorf("index has %d entries, header says %d", len(r.index), r.header.TotalRecords)
	}
	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	if r == nil {
		return LogHeader{}
	}
	return r.header
}

// TotalRecords returns the number of records in the log.
func (r *Replayer) TotalRecords() int {
	if r == nil {
		return 0
	}
	return len(r.index)
}

// PathSamples returns the number of path samples the log covers.
func (r *Replayer) PathSamples() int {
	if r == nil {
		return 0
	}
	return r.header.PathSamples
}

// PathIndices returns the path samples that have at least one record, in
// ascending order.
func (r *Replayer) PathIndices() []int {
	if r == nil {
		return nil
	}
	out := make([]int, 0, len(r.byPath))
	for k := range r.byPath {
		out = append(out, int(k))
	}
	sort.Ints(out)
	return out
}

// Observations returns every record taken at path sample pathIndex. On a
// read failure the records read so far are returned with the error.
func (r *Replayer) Observations(pathIndex int) ([]*Record, error) {
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if pathIndex < 0 {
		return nil, nil
	}
	ids := r.byPath[uint32(pathIndex)]
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.readLocked(id)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Seek positions the sequential reader at record i.
func (r *Replayer) Seek(i int) error {
	if r == nil {
		return fmt.Errorf("seek to record %d: no log open", i)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.index) {
		return fmt.Errorf("record index out of range: %d of %d", i, len(r.index))
	}
	r.current = i
	return nil
}

// ReadRecord reads the current record and advances, returning its path
// index. Returns io.EOF at the end of the log. A record that cannot be
// read is skipped, so the next call moves on.
func (r *Replayer) ReadRecord() (*Record, int, error) {
	if r == nil {
		return nil, 0, io.EOF
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= len(r.index) {
		return nil, 0, io.EOF
	}
	id := r.current
	pathIndex := int(r.index[id].PathIndex)
	r.current++
	rec, err := r.readLocked(id)
	if err != nil {
		return nil, pathIndex, fmt.Errorf("record %d: %w", id, err)
	}
	return rec, pathIndex, nil
}

func (r *Replayer) readLocked(id int) (*Record, error) {
	entry := r.index[id]
	if int(entry.ChunkID) != r.currentChunk {
		data, err := os.ReadFile(chunkPath(r.basePath, int(entry.ChunkID)))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk: %w", err)
		}
		r.chunkData = data
		r.currentChunk = int(entry.ChunkID)
	}

	offset := uint64(entry.Offset)
	if offset+4 > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid record offset %d in chunk %d", offset, entry.ChunkID)
	}
	n := uint64(binary.LittleEndian.Uint32(r.chunkData[offset:]))
	offset += 4
	if offset+n > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid record length %d in chunk %d", n, entry.ChunkID)
	}

	rec := &Record{}
	if err := rec.UnmarshalBinary(r.chunkData[offset : offset+n]); err != nil {
		return nil, fmt.Errorf("failed to decode record %d: %w", entry.RecordID, err)
	}
	return rec, nil
}

// Close releases the cached chunk.
func (r *Replayer) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkData = nil
	r.currentChunk = -1
	return nil
}

type pathFile struct {
	Positions []pathPoint `json:"positions"`
}

type pathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SavePath writes positions as JSON.
func SavePath(path string, positions []r3.Vector) error {
	pf := pathFile{Positions: make([]pathPoint, len(positions))}
	for i, p := range positions {
		pf.Positions[i] = pathPoint{X: p.X, Y: p.Y, Z: p.Z}
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal path: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write path: %w", err)
	}
	return nil
}

// LoadPath reads positions written by SavePath.
func LoadPath(path string) ([]r3.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read path: %w", err)
	}
	var pf pathFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse path: %w", err)
	}
	out := make([]r3.Vector, len(pf.Positions))
	for i, p := range pf.Positions {
		out[i] = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out, nil
}
