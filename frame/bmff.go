package frame

import (
	"github.com/fmdscan/fmd/stream"
)

// BMFFBoxType is a box's 4-character type, the CurrentType value of a
// BMFFBoxIterator.
type BMFFBoxType string

// BMFFBoxIterator walks the boxes of an ISO base media file format
// container (or of one box's payload, for nested iteration). A box is
// {4-byte big-endian size, 4-byte type, payload}. Size 0 means "extends to
// the end of the bounding range"; size 1 means an 8-byte extended size
// immediately follows the type.
//
// Nested iteration is expressed by constructing a new BMFFBoxIterator over
// the same stream, bounded to the current box's payload range
// (CurrentPayloadOffset, CurrentDataLen), not by a separate "descend"
// method.
type BMFFBoxIterator struct {
	s          stream.Stream
	start, end int64 // bounding range this iterator walks.
	offs       int64 // absolute offset of the next box header.

	curType        BMFFBoxType
	curPayloadOffs int64
	curPayloadLen  int64
	done           bool
}

// NewBMFFBoxIterator returns an iterator over the boxes in [start, end) of
// s. Passing end == s.Size() walks a top-level container; passing a box's
// own payload bounds walks its children.
func NewBMFFBoxIterator(s stream.Stream, start, end int64) *BMFFBoxIterator {
	return &BMFFBoxIterator{s: s, start: start, end: end, offs: start}
}

// Next reads the next box header, resolving size == 0 and size == 1 to a
// payload length exactly as a literal fixed-size box would, so traversal
// output is identical across the three encodings.
func (it *BMFFBoxIterator) Next() (Result, error) {
	if it.done {
		return ResultEnd, nil
	}
	if it.offs >= it.end {
		it.done = true
		return ResultEnd, nil
	}
	if it.offs+8 > it.end {
		return ResultMalformed, nil
	}
	hdr, err := it.s.Get(it.offs, 8)
	if err != nil {
		return ResultMalformed, err
	}
	size := int64(hdr[0])<<24 | int64(hdr[1])<<16 | int64(hdr[2])<<8 | int64(hdr[3])
	boxType := string(hdr[4:8])

	headerLen := int64(8)
	switch size {
	case 0:
		size = it.end - it.offs
	case 1:
		if it.offs+16 > it.end {
			return ResultMalformed, nil
		}
		ext, err := it.s.Get(it.offs+8, 8)
		if err != nil {
			return ResultMalformed, err
		}
		size = int64(ext[0])<<56 | int64(ext[1])<<48 | int64(ext[2])<<40 | int64(ext[3])<<32 |
			int64(ext[4])<<24 | int64(ext[5])<<16 | int64(ext[6])<<8 | int64(ext[7])
		headerLen = 16
	}
	if size < headerLen || it.offs+size > it.end {
		return ResultMalformed, nil
	}

	it.curType = BMFFBoxType(boxType)
	it.curPayloadOffs = it.offs + headerLen
	it.curPayloadLen = size - headerLen
	it.offs += size
	return ResultOK, nil
}

// CurrentType returns the current box's BMFFBoxType.
func (it *BMFFBoxIterator) CurrentType() any { return it.curType }

// CurrentDataLen returns the current box's payload length.
func (it *BMFFBoxIterator) CurrentDataLen() int64 { return it.curPayloadLen }

// CurrentPayloadOffset returns the absolute offset of the current box's
// payload, used to construct a ranged stream for nested iteration or
// full-box parsing without re-deriving it from CurrentDataLen.
func (it *BMFFBoxIterator) CurrentPayloadOffset() int64 { return it.curPayloadOffs }

// Read returns the current box's full payload.
func (it *BMFFBoxIterator) Read() ([]byte, error) {
	return it.s.Get(it.curPayloadOffs, int(it.curPayloadLen))
}

// Close is a no-op; BMFFBoxIterator holds no resources of its own.
func (it *BMFFBoxIterator) Close() error { return nil }
