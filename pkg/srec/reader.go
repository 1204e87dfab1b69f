// Package srec implements a streaming reader for Motorola S-record (S1,
// S2, S3) firmware files, producing sorted, coalesced memory segments
// with random-access read cursors without loading the whole file into
// memory.
package srec

import (
	"bufio"
	"io"
	"os"
	"sort"

	"github.com/samsamfire/xcpflash/pkg/firmware"
)

// maxSegments bounds segment-set growth, the same fixed-capacity
// discipline the teacher applies to its ring buffers: growth beyond this
// is reported as ErrOutOfMemory rather than left unbounded.
const maxSegments = 4096

// record is one S1/S2/S3 line contributing to a segment. offset points
// at the start of the line in the backing file, so the cursor can
// re-read and re-decode it on demand.
type record struct {
	offset  int64
	dataLen int
}

type segment struct {
	base    uint32
	length  uint32
	records []record
}

// Reader is the concrete Firmware Reader for Motorola S-record files.
type Reader struct {
	src         io.ReadSeeker
	closer      io.Closer // non-nil only when src was opened from a path
	segments    []segment
	maxLineData int
	cursor      *Cursor
}

// New returns an unopened Reader.
func New() *Reader {
	return &Reader{}
}

var _ firmware.Reader = (*Reader)(nil)

// Open parses path into a sorted, coalesced segment set. On any parse
// error the file is closed and the reader is left not-open.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return ErrIO
	}
	if err := r.OpenReader(f); err != nil {
		f.Close()
		return err
	}
	r.closer = f
	return nil
}

// OpenReader parses an already-open io.ReadSeeker into a sorted,
// coalesced segment set, the same algorithm Open runs against a file.
// src must be positioned at the start of the S-record text; random
// access is required because the cursor re-reads lines by offset
// instead of buffering the whole file. This lets callers exercise the
// parser against an in-memory source such as strings.NewReader without
// touching a filesystem. Close releases src only if it also implements
// io.Closer and was supplied via Open, not OpenReader.
func (r *Reader) OpenReader(src io.ReadSeeker) error {
	r.segments = nil
	r.maxLineData = 0
	r.cursor = nil
	r.closer = nil
	if err := r.parse(src); err != nil {
		r.segments = nil
		r.maxLineData = 0
		r.src = nil
		return err
	}
	r.src = src
	return nil
}

// parse runs the segmentation algorithm over src, accumulating the
// segment set into the receiver. The caller owns closing src on error;
// a successful call leaves src positioned arbitrarily (segments are
// re-read by offset, not sequentially).
func (r *Reader) parse(src io.ReadSeeker) error {
	br := bufio.NewReader(src)
	var offset int64
	var cur *segment
	var scratch []byte

	for {
		lineStart := offset
		line, readErr := br.ReadString('\n')
		offset += int64(len(line))

		if len(line) > 0 {
			var parsed parsedLine
			var perr error
			parsed, scratch, perr = parseLine([]byte(line), scratch)
			if perr != nil {
				return perr
			}
			if parsed.isData {
				if len(parsed.data) > r.maxLineData {
					r.maxLineData = len(parsed.data)
				}
				rec := record{offset: lineStart, dataLen: len(parsed.data)}
				if cur != nil && parsed.base == cur.base+cur.length {
					cur.length += uint32(len(parsed.data))
					cur.records = append(cur.records, rec)
				} else {
					if cur != nil {
						r.segments = append(r.segments, *cur)
					}
					if len(r.segments) >= maxSegments {
						return ErrOutOfMemory
					}
					cur = &segment{base: parsed.base, length: uint32(len(parsed.data)), records: []record{rec}}
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return ErrIO
		}
	}
	if cur != nil {
		r.segments = append(r.segments, *cur)
	}

	sort.Slice(r.segments, func(i, j int) bool { return r.segments[i].base < r.segments[j].base })
	merged := r.segments[:0]
	for _, next := range r.segments {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if next.base < prev.base+prev.length || next.base == prev.base {
				return ErrSegmentOverlap
			}
			// Lines that abut but were not consecutive in the file still
			// belong to one segment.
			if next.base == prev.base+prev.length {
				prev.length += next.length
				prev.records = append(prev.records, next.records...)
				continue
			}
		}
		merged = append(merged, next)
	}
	r.segments = merged
	return nil
}

// Close releases the backing file handle, if Open (rather than
// OpenReader) supplied one. Safe to call when not open.
func (r *Reader) Close() error {
	r.cursor = nil
	r.segments = nil
	r.src = nil
	closer := r.closer
	r.closer = nil
	if closer == nil {
		return nil
	}
	if err := closer.Close(); err != nil {
		return ErrIO
	}
	return nil
}

func (r *Reader) SegmentCount() int {
	return len(r.segments)
}

func (r *Reader) SegmentInfo(idx int) (firmware.Segment, error) {
	if idx < 0 || idx >= len(r.segments) {
		return firmware.Segment{}, ErrBadIndex
	}
	s := r.segments[idx]
	return firmware.Segment{BaseAddress: s.base, Length: s.length, Locator: idx}, nil
}

// OpenSegment positions a new Cursor over segment idx, invalidating any
// previously opened cursor.
func (r *Reader) OpenSegment(idx int) error {
	if r.src == nil {
		return ErrNotOpen
	}
	if idx < 0 || idx >= len(r.segments) {
		return ErrBadIndex
	}
	seg := &r.segments[idx]
	scratch := make([]byte, r.maxLineData)
	r.cursor = &Cursor{
		src:       r.src,
		seg:       seg,
		nextAddr:  seg.base,
		remaining: seg.length,
		scratch:   scratch,
	}
	return nil
}

// NextChunk yields the next contiguous chunk of the segment opened by
// the last OpenSegment call. The returned Chunk.Data aliases the
// cursor's scratch buffer and is invalidated by the next call.
func (r *Reader) NextChunk() (firmware.Chunk, bool, error) {
	if r.cursor == nil {
		return firmware.Chunk{}, false, ErrNotOpen
	}
	return r.cursor.next()
}

// Cursor is the transient per-segment read position created by opening
// a segment. It is exclusively owned by the caller while open.
type Cursor struct {
	src       io.ReadSeeker
	seg       *segment
	recIdx    int
	nextAddr  uint32
	remaining uint32
	scratch   []byte
}

func (c *Cursor) next() (firmware.Chunk, bool, error) {
	if c.recIdx >= len(c.seg.records) {
		return firmware.Chunk{}, false, nil
	}
	rec := c.seg.records[c.recIdx]
	c.recIdx++

	if _, err := c.src.Seek(rec.offset, io.SeekStart); err != nil {
		return firmware.Chunk{}, false, ErrIO
	}
	br := bufio.NewReader(c.src)
	line, err := br.ReadString('\n')
	if len(line) == 0 && err != nil && err != io.EOF {
		return firmware.Chunk{}, false, ErrIO
	}

	parsed, scratch, perr := parseLine([]byte(line), c.scratch)
	c.scratch = scratch
	if perr != nil || !parsed.isData {
		return firmware.Chunk{}, false, ErrIO
	}

	addr := c.nextAddr
	c.nextAddr += uint32(len(parsed.data))
	c.remaining -= uint32(len(parsed.data))

	return firmware.Chunk{Address: addr, Data: parsed.data}, true, nil
}
