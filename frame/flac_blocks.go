package frame

import (
	"github.com/fmdscan/fmd/stream"
)

// FLACBlockType identifies a FLAC metadata block's kind, the CurrentType
// value of a FLACBlockIterator.
type FLACBlockType uint8

// Recognized metadata block types. Only StreamInfo and VorbisComment are
// decoded; the others are skipped over.
const (
	FLACBlockStreamInfo    FLACBlockType = 0
	FLACBlockPadding       FLACBlockType = 1
	FLACBlockApplication   FLACBlockType = 2
	FLACBlockSeekTable     FLACBlockType = 3
	FLACBlockVorbisComment FLACBlockType = 4
	FLACBlockCueSheet      FLACBlockType = 5
	FLACBlockPicture       FLACBlockType = 6
)

// FLACBlockIterator walks the metadata block chain that follows a FLAC
// stream's 4-byte "fLaC" magic. Each block begins with a 4-byte header: the
// top bit of the first byte is "last block," the low 7 bits are the block
// type, and the remaining 3 bytes are a big-endian payload length.
type FLACBlockIterator struct {
	s    stream.Stream
	offs int64 // absolute offset of the next block header.

	curType   FLACBlockType
	curLen    int64
	curStart  int64
	isLast    bool
	done      bool
}

// NewFLACBlockIterator returns an iterator starting immediately after the
// "fLaC" magic at offset 4 in s.
func NewFLACBlockIterator(s stream.Stream) *FLACBlockIterator {
	return &FLACBlockIterator{s: s, offs: 4}
}

// Next reads the next block header.
func (it *FLACBlockIterator) Next() (Result, error) {
	if it.done {
		return ResultEnd, nil
	}
	if it.offs+4 > it.s.Size() {
		return ResultMalformed, nil
	}
	hdr, err := it.s.Get(it.offs, 4)
	if err != nil {
		return ResultMalformed, err
	}

	const (
		isLastMask = 0x80
		typeMask   = 0x7F
	)
	isLast := hdr[0]&isLastMask != 0
	blockType := hdr[0] & typeMask
	if blockType >= 7 && blockType <= 126 {
		return ResultMalformed, nil // reserved
	}
	if blockType == 127 {
		return ResultMalformed, nil // invalid
	}
	length := int64(hdr[1])<<16 | int64(hdr[2])<<8 | int64(hdr[3])

	it.curType = FLACBlockType(blockType)
	it.curLen = length
	it.curStart = it.offs + 4
	it.isLast = isLast
	it.offs = it.curStart + length
	if isLast {
		it.done = true
	}
	return ResultOK, nil
}

// CurrentType returns the current block's FLACBlockType.
func (it *FLACBlockIterator) CurrentType() any { return it.curType }

// CurrentDataLen returns the current block's payload length.
func (it *FLACBlockIterator) CurrentDataLen() int64 { return it.curLen }

// Read returns the current block's full payload.
func (it *FLACBlockIterator) Read() ([]byte, error) {
	return it.s.Get(it.curStart, int(it.curLen))
}

// Close is a no-op; FLACBlockIterator holds no resources of its own.
func (it *FLACBlockIterator) Close() error { return nil }
