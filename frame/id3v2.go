package frame

import (
	"github.com/fmdscan/fmd/internal/bits"
	"github.com/fmdscan/fmd/stream"
)

// ID3v2FrameID is the 4-character ASCII identifier of an ID3v2 frame, the
// CurrentType value of an ID3v2FrameIterator.
type ID3v2FrameID string

// ID3v2Version distinguishes the two supported tag revisions.
type ID3v2Version int

// Recognized ID3v2 revisions. 2.2's 3-byte frame ids are rejected outright
// by NewID3v2FrameIterator.
const (
	ID3v2_3 ID3v2Version = 3
	ID3v2_4 ID3v2Version = 4
)

// ID3v2FrameIterator walks the frames of an ID3v2.3 or ID3v2.4 tag. The tag
// header occupies the stream's first 10 bytes; bytes 6-9 hold a synchsafe
// (7-bits-per-byte) total tag size. Each frame that follows has a 10-byte
// header: a 4-byte ASCII id, a 4-byte big-endian size, and 2 flag bytes.
type ID3v2FrameIterator struct {
	s       stream.Stream
	version ID3v2Version
	tagEnd  int64 // absolute offset just past the tag.
	offs    int64 // absolute offset of the next frame header.

	curID    ID3v2FrameID
	curLen   int64
	curStart int64
	done     bool
}

// synchsafe decodes a 4-byte synchsafe integer: the most significant bit
// of each byte is a guard bit, never set, so only the low 7 bits of each
// byte carry value. Each byte is a separate bit-field read since the
// guard bits break what would otherwise be one contiguous 32-bit span.
func synchsafe(b []byte) int64 {
	var x int64
	for i := 0; i < 4; i++ {
		x = x<<7 | bits.BitsBE(b[i:i+1], 1, 7)
	}
	return x
}

// NewID3v2FrameIterator validates the 10-byte ID3v2 tag header at the start
// of s and returns an iterator over its frames. ID3v2.2 (major version 2)
// returns a stream.Error with stream.KindNotSupported.
func NewID3v2FrameIterator(s stream.Stream) (*ID3v2FrameIterator, error) {
	hdr, err := s.Get(0, 10)
	if err != nil {
		return nil, err
	}
	if string(hdr[0:3]) != "ID3" {
		return nil, &stream.Error{Kind: stream.KindRange, Op: "id3v2 magic"}
	}
	major := hdr[3]
	if major < 3 {
		return nil, &stream.Error{Kind: stream.KindNotSupported, Op: "id3v2.2 frame ids"}
	}
	size := synchsafe(hdr[6:10])
	return &ID3v2FrameIterator{
		s:       s,
		version: ID3v2Version(major),
		tagEnd:  10 + size,
		offs:    10,
	}, nil
}

// Next reads the next frame header, stopping at a zero-size frame (trailing
// padding) or the end of the tag.
func (it *ID3v2FrameIterator) Next() (Result, error) {
	if it.done {
		return ResultEnd, nil
	}
	if it.offs+10 > it.tagEnd || it.offs+10 > it.s.Size() {
		it.done = true
		return ResultEnd, nil
	}
	hdr, err := it.s.Get(it.offs, 10)
	if err != nil {
		return ResultMalformed, err
	}
	id := string(hdr[0:4])
	size := int64(hdr[4])<<24 | int64(hdr[5])<<16 | int64(hdr[6])<<8 | int64(hdr[7])
	if size == 0 {
		it.done = true
		return ResultEnd, nil
	}

	it.curID = ID3v2FrameID(id)
	it.curLen = size
	it.curStart = it.offs + 10
	it.offs = it.curStart + size
	return ResultOK, nil
}

// CurrentType returns the current frame's ID3v2FrameID.
func (it *ID3v2FrameIterator) CurrentType() any { return it.curID }

// CurrentDataLen returns the current frame's payload length.
func (it *ID3v2FrameIterator) CurrentDataLen() int64 { return it.curLen }

// Read returns the current frame's full payload.
func (it *ID3v2FrameIterator) Read() ([]byte, error) {
	return it.s.Get(it.curStart, int(it.curLen))
}

// Close is a no-op; ID3v2FrameIterator holds no resources of its own.
func (it *ID3v2FrameIterator) Close() error { return nil }
