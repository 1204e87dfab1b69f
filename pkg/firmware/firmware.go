// Package firmware defines the capability the update orchestrator uses
// to enumerate and stream firmware data, independent of file format.
package firmware

// Segment is a maximal contiguous run of firmware bytes destined for a
// contiguous target memory range. Segments are pairwise address-disjoint
// and pairwise non-adjacent within one opened file.
type Segment struct {
	BaseAddress uint32
	Length      uint32
	// Locator is opaque to the orchestrator; it lets the concrete
	// reader reopen this segment for sequential streaming.
	Locator any
}

// Chunk is one piece of a segment's byte stream, yielded in ascending,
// contiguous address order: Chunk[k].Address+len(Chunk[k].Data) ==
// Chunk[k+1].Address.
type Chunk struct {
	Address uint32
	Data    []byte
}

// Reader is the capability set the orchestrator calls into. The concrete
// reader owns segment storage for the lifetime of the open file.
type Reader interface {
	// Open parses path and builds the segment set. A parse error leaves
	// the reader in the not-open state.
	Open(path string) error

	// Close releases any file handles. Safe to call when not open.
	Close() error

	// SegmentCount returns the number of segments found by Open.
	SegmentCount() int

	// SegmentInfo returns the base address and length of segment idx.
	SegmentInfo(idx int) (Segment, error)

	// OpenSegment positions the reader's cursor at the start of segment
	// idx. Opening a new segment invalidates any cursor from a
	// previous call.
	OpenSegment(idx int) error

	// NextChunk yields the next contiguous chunk of the currently open
	// segment. ok is false once the segment is exhausted.
	NextChunk() (chunk Chunk, ok bool, err error)
}
