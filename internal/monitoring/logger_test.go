package monitoring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestStreamsForLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	s, err := StreamsForLevel("off", &buf)
	require.NoError(t, err)
	assert.Nil(t, s.Ops)

	s, err = StreamsForLevel("", &buf)
	require.NoError(t, err)
	assert.NotNil(t, s.Ops)
	assert.Nil(t, s.Diag)

	s, err = StreamsForLevel("diag", &buf)
	require.NoError(t, err)
	assert.NotNil(t, s.Diag)
	assert.Nil(t, s.Trace)

	s, err = StreamsForLevel("trace", &buf)
	require.NoError(t, err)
	assert.NotNil(t, s.Trace)

	_, err = StreamsForLevel("loud", &buf)
	assert.Error(t, err)
}

func TestDebugLogStreams(t *testing.T) {
	t.Parallel()
	d := NewDebugLog("grid")
	d.Opsf("dropped before writers are set")

	var ops, diag bytes.Buffer
	d.SetWriters(&ops, &diag, nil)
	d.Opsf("chunk %d missing", 3)
	d.Diagf("swap %d", 1)
	d.Tracef("not written")

	assert.Contains(t, ops.String(), "[grid] ")
	assert.Contains(t, ops.String(), "chunk 3 missing")
	assert.NotContains(t, ops.String(), "dropped")
	assert.Contains(t, diag.String(), "swap 1")
	assert.NotContains(t, diag.String(), "not written")

	d.SetWriters(nil, nil, nil)
	d.Opsf("after reset")
	assert.NotContains(t, ops.String(), "after reset")
}
