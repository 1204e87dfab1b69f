package srec

import "errors"

var (
	ErrFileNotFound   = errors.New("srec: file not found")
	ErrIO             = errors.New("srec: io error")
	ErrBadChecksum    = errors.New("srec: checksum mismatch")
	ErrBadByteCount   = errors.New("srec: byte count too small for address and checksum")
	ErrSegmentOverlap = errors.New("srec: overlapping or duplicate segment base address")
	ErrOutOfMemory    = errors.New("srec: segment storage exceeded configured cap")
	ErrNotOpen        = errors.New("srec: no file open")
	ErrBadIndex       = errors.New("srec: segment index out of range")
)
