package frame

import (
	"github.com/fmdscan/fmd/stream"
)

// JPEGMarker is a segment's single marker byte, the CurrentType value of a
// JPEGSegmentIterator.
type JPEGMarker byte

// Markers with no length field.
const (
	JPEGMarkerSOI JPEGMarker = 0xD8
	JPEGMarkerEOI JPEGMarker = 0xD9
)

// JPEGSegmentIterator walks the 0xFF-prefixed marker segments of a JPEG
// file. SOI and EOI carry no length; every other segment has a 2-byte
// big-endian length that includes those two length bytes themselves, so a
// segment whose length is less than 2 is malformed.
type JPEGSegmentIterator struct {
	s    stream.Stream
	offs int64

	curMarker      JPEGMarker
	curPayloadOffs int64
	curPayloadLen  int64
	done           bool
}

// NewJPEGSegmentIterator returns an iterator starting at offset 0 of s.
func NewJPEGSegmentIterator(s stream.Stream) *JPEGSegmentIterator {
	return &JPEGSegmentIterator{s: s}
}

// Next reads the next marker segment.
func (it *JPEGSegmentIterator) Next() (Result, error) {
	if it.done {
		return ResultEnd, nil
	}
	if it.offs+2 > it.s.Size() {
		it.done = true
		return ResultEnd, nil
	}
	hdr, err := it.s.Get(it.offs, 2)
	if err != nil {
		return ResultMalformed, err
	}
	if hdr[0] != 0xFF {
		return ResultMalformed, nil
	}
	marker := JPEGMarker(hdr[1])

	if marker == JPEGMarkerSOI {
		it.curMarker = marker
		it.curPayloadOffs = it.offs + 2
		it.curPayloadLen = 0
		it.offs += 2
		return ResultOK, nil
	}
	if marker == JPEGMarkerEOI {
		it.curMarker = marker
		it.curPayloadOffs = it.offs + 2
		it.curPayloadLen = 0
		it.offs += 2
		it.done = true
		return ResultOK, nil
	}

	if it.offs+4 > it.s.Size() {
		return ResultMalformed, nil
	}
	lenBytes, err := it.s.Get(it.offs+2, 2)
	if err != nil {
		return ResultMalformed, err
	}
	segLen := int64(lenBytes[0])<<8 | int64(lenBytes[1])
	if segLen < 2 {
		return ResultMalformed, nil
	}

	it.curMarker = marker
	it.curPayloadOffs = it.offs + 4
	it.curPayloadLen = segLen - 2
	it.offs = it.offs + 2 + segLen
	return ResultOK, nil
}

// CurrentType returns the current segment's JPEGMarker.
func (it *JPEGSegmentIterator) CurrentType() any { return it.curMarker }

// CurrentDataLen returns the current segment's payload length (excluding
// the marker and length bytes).
func (it *JPEGSegmentIterator) CurrentDataLen() int64 { return it.curPayloadLen }

// CurrentPayloadOffset returns the absolute offset of the current
// segment's payload.
func (it *JPEGSegmentIterator) CurrentPayloadOffset() int64 { return it.curPayloadOffs }

// Read returns the current segment's payload.
func (it *JPEGSegmentIterator) Read() ([]byte, error) {
	if it.curPayloadLen == 0 {
		return nil, nil
	}
	return it.s.Get(it.curPayloadOffs, int(it.curPayloadLen))
}

// Close is a no-op; JPEGSegmentIterator holds no resources of its own.
func (it *JPEGSegmentIterator) Close() error { return nil }
