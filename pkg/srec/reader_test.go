package srec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fw.s19")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMinimalFile(t *testing.T) {
	path := writeTemp(t, "S10A001001020304050607C9\r\n")
	r := New()
	require.NoError(t, r.Open(path))
	defer r.Close()

	require.Equal(t, 1, r.SegmentCount())
	seg, err := r.SegmentInfo(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0010, seg.BaseAddress)
	assert.EqualValues(t, 7, seg.Length)

	require.NoError(t, r.OpenSegment(0))
	chunk, ok, err := r.NextChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0x0010, chunk.Address)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, chunk.Data)

	_, ok, err = r.NextChunk()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTwoCoalescedLines(t *testing.T) {
	path := writeTemp(t, "S1060000010203F3\nS1060003010203F0\n")
	r := New()
	require.NoError(t, r.Open(path))
	defer r.Close()

	require.Equal(t, 1, r.SegmentCount())
	seg, err := r.SegmentInfo(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0000, seg.BaseAddress)
	assert.EqualValues(t, 6, seg.Length)

	require.NoError(t, r.OpenSegment(0))
	var total int
	var lastEnd uint32
	for {
		chunk, ok, err := r.NextChunk()
		require.NoError(t, err)
		if !ok {
			break
		}
		if total > 0 {
			assert.Equal(t, lastEnd, chunk.Address)
		}
		lastEnd = chunk.Address + uint32(len(chunk.Data))
		total += len(chunk.Data)
	}
	assert.EqualValues(t, seg.Length, total)
}

func TestGapProducesTwoSegments(t *testing.T) {
	path := writeTemp(t, "S1060000010203F3\nS1060100010203F2\n")
	r := New()
	require.NoError(t, r.Open(path))
	defer r.Close()

	require.Equal(t, 2, r.SegmentCount())
	seg0, err := r.SegmentInfo(0)
	require.NoError(t, err)
	seg1, err := r.SegmentInfo(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0000, seg0.BaseAddress)
	assert.EqualValues(t, 3, seg0.Length)
	assert.EqualValues(t, 0x0100, seg1.BaseAddress)
	assert.EqualValues(t, 3, seg1.Length)
}

func TestBadChecksumRejectsFile(t *testing.T) {
	path := writeTemp(t, "S10A00100102030405060700\n")
	r := New()
	err := r.Open(path)
	require.Error(t, err)
	assert.Equal(t, 0, r.SegmentCount())
}

func TestUnsupportedRecordTypesIgnored(t *testing.T) {
	path := writeTemp(t, "S0030000FC\nS10A001001020304050607C9\nS9030000FC\n")
	r := New()
	require.NoError(t, r.Open(path))
	defer r.Close()
	assert.Equal(t, 1, r.SegmentCount())
}

func TestSegmentReopenIsByteIdentical(t *testing.T) {
	path := writeTemp(t, "S10A001001020304050607C9\n")
	r := New()
	require.NoError(t, r.Open(path))
	defer r.Close()

	readAll := func() []byte {
		require.NoError(t, r.OpenSegment(0))
		var out []byte
		for {
			chunk, ok, err := r.NextChunk()
			require.NoError(t, err)
			if !ok {
				break
			}
			out = append(out, chunk.Data...)
		}
		return out
	}

	first := readAll()
	second := readAll()
	assert.Equal(t, first, second)
}

func TestBadByteCountRejected(t *testing.T) {
	path := writeTemp(t, "S1030000FC\n")
	r := New()
	err := r.Open(path)
	require.ErrorIs(t, err, ErrBadByteCount)
}

func TestFileNotFound(t *testing.T) {
	r := New()
	err := r.Open(filepath.Join(t.TempDir(), "missing.s19"))
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpenReaderParsesInMemorySource(t *testing.T) {
	r := New()
	require.NoError(t, r.OpenReader(strings.NewReader("S10A001001020304050607C9\n")))
	defer r.Close()

	require.Equal(t, 1, r.SegmentCount())
	seg, err := r.SegmentInfo(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0010, seg.BaseAddress)
	assert.EqualValues(t, 7, seg.Length)

	require.NoError(t, r.OpenSegment(0))
	chunk, ok, err := r.NextChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, chunk.Data)
}

func TestOverlappingSegmentsRejected(t *testing.T) {
	// Two lines with the same base address.
	path := writeTemp(t, "S10A001001020304050607C9\nS10A001001020304050607C9\n")
	r := New()
	err := r.Open(path)
	require.Error(t, err)
}
