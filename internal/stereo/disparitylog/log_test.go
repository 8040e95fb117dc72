package disparitylog

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereogrid/internal/stereo/evidence"
)

func sampleRecord(ts int64, features int) *Record {
	rec := &Record{
		TimestampNs: ts,
		X:           100.5,
		Y:           -20.25,
		Pan:         0.5,
		HeadPan:     -0.25,
		HeadTilt:    0.125,
		CameraIndex: 1,
	}
	for i := 0; i < features; i++ {
		rec.Features = append(rec.Features, evidence.Feature{
			X:         float64(10 + i),
			Y:         float64(20 + i),
			Disparity: 4.5,
			Colour:    [3]uint8{uint8(i), 2, 3},
		})
	}
	return rec
}

func TestRecordBinaryLayout(t *testing.T) {
	t.Parallel()
	rec := sampleRecord(42, 2)
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 8+24+8+2*12+2*3)
	assert.Equal(t, []byte{0, 2, 3, 1, 2, 3}, data[len(data)-6:])

	var got Record
	require.NoError(t, got.UnmarshalBinary(data))
	if diff := cmp.Diff(*rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, r3.Vector{X: 100.5, Y: -20.25}, got.BodyPose().Position)
	assert.Equal(t, 0.125, got.HeadOrientation().Tilt)
}

func TestRecordUnmarshalErrors(t *testing.T) {
	t.Parallel()
	data, err := sampleRecord(1, 1).MarshalBinary()
	require.NoError(t, err)

	var r Record
	assert.Error(t, r.UnmarshalBinary(data[:10]))
	assert.Error(t, r.UnmarshalBinary(data[:len(data)-1]))
	assert.Error(t, r.UnmarshalBinary(append(data, 0)))

	neg := append([]byte(nil), data...)
	neg[36], neg[37], neg[38], neg[39] = 0xff, 0xff, 0xff, 0xff
	assert.Error(t, r.UnmarshalBinary(neg))

	_, err = (&Record{CameraIndex: -1}).MarshalBinary()
	assert.Error(t, err)
}

func TestRecordReplay(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "run")
	rec, err := NewRecorder(dir)
	require.NoError(t, err)

	path := []r3.Vector{{}, {Y: 100}, {Y: 200}}
	rec.SetPath(path)
	require.NoError(t, rec.Record(0, sampleRecord(1, 3)))
	require.NoError(t, rec.Record(0, sampleRecord(2, 0)))
	require.NoError(t, rec.Record(2, sampleRecord(3, 5)))
	assert.Equal(t, uint64(3), rec.RecordCount())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "second close is a no-op")
	assert.Error(t, rec.Record(0, sampleRecord(4, 1)))

	rp, err := NewReplayer(dir)
	require.NoError(t, err)
	defer rp.Close()

	h := rp.Header()
	assert.Equal(t, uint64(3), h.TotalRecords)
	assert.Equal(t, 3, h.PathSamples)
	assert.Equal(t, int64(1), h.StartNs)
	assert.Equal(t, int64(3), h.EndNs)
	assert.NotEmpty(t, h.RunID)
	assert.Equal(t, []int{0, 2}, rp.PathIndices())

	obs, err := rp.Observations(0)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Len(t, obs[0].Features, 3)
	assert.Empty(t, obs[1].Features)

	obs, err = rp.Observations(1)
	require.NoError(t, err)
	assert.Empty(t, obs)

	obs, err = rp.Observations(2)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, int64(3), obs[0].TimestampNs)

	t.Run("sequential", func(t *testing.T) {
		require.NoError(t, rp.Seek(1))
		r, pi, err := rp.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, int64(2), r.TimestampNs)
		assert.Equal(t, 0, pi)
		_, pi, err = rp.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, 2, pi)
		_, _, err = rp.ReadRecord()
		assert.True(t, errors.Is(err, io.EOF))
		assert.Error(t, rp.Seek(3))
	})

	loaded, err := LoadPath(filepath.Join(dir, PathFile))
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
}

func TestChunkRotation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)
	for i := 0; i < ChunkSize+5; i++ {
		require.NoError(t, rec.Record(i/100, sampleRecord(int64(i+1), 1)))
	}
	require.NoError(t, rec.Close())

	_, err = os.Stat(chunkPath(dir, 1))
	require.NoError(t, err)

	rp, err := NewReplayer(dir)
	require.NoError(t, err)
	obs, err := rp.Observations(10)
	require.NoError(t, err)
	require.Len(t, obs, 5)
	assert.Equal(t, int64(ChunkSize+1), obs[0].TimestampNs)

	obs, err = rp.Observations(0)
	require.NoError(t, err)
	assert.Len(t, obs, 100)
}

func TestReplayerErrors(t *testing.T) {
	t.Parallel()
	_, err := NewReplayer(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)
	require.NoError(t, rec.Record(0, sampleRecord(1, 1)))
	require.NoError(t, rec.Close())

	// A torn index entry must not be silently dropped.
	f, err := os.OpenFile(filepath.Join(dir, indexFile), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = NewReplayer(dir)
	assert.Error(t, err)

	_, err = LoadPath(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestMissingChunkIsSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)
	for i := 0; i < ChunkSize+5; i++ {
		require.NoError(t, rec.Record(i/100, sampleRecord(int64(i+1), 1)))
	}
	require.NoError(t, rec.Close())
	require.NoError(t, os.Remove(chunkPath(dir, 0)))

	rp, err := NewReplayer(dir)
	require.NoError(t, err)
	defer rp.Close()

	obs, err := rp.Observations(3)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, obs)

	obs, err = rp.Observations(10)
	require.NoError(t, err, "later chunks still replay")
	assert.Len(t, obs, 5)

	require.NoError(t, rp.Seek(ChunkSize-1))
	_, pi, err := rp.ReadRecord()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 9, pi)

	r, pi, err := rp.ReadRecord()
	require.NoError(t, err, "the unreadable record is skipped")
	assert.Equal(t, int64(ChunkSize+1), r.TimestampNs)
	assert.Equal(t, 10, pi)
}

func TestNilReplayerIsEmpty(t *testing.T) {
	t.Parallel()
	var rp *Replayer
	assert.Zero(t, rp.TotalRecords())
	assert.Zero(t, rp.PathSamples())
	assert.Empty(t, rp.PathIndices())
	assert.Equal(t, LogHeader{}, rp.Header())

	obs, err := rp.Observations(0)
	assert.NoError(t, err)
	assert.Empty(t, obs)

	_, _, err = rp.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, rp.Seek(0))
	assert.NoError(t, rp.Close())
}
