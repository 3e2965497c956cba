// Package frame layers bounded, format-specific cursors over a
// stream.Stream: FLAC metadata blocks, ID3v2 frames, BMFF boxes, JPEG
// segments, and TIFF IFD entries. Every cursor implements the same
// Iterator contract so a decoder walks any of them the same way.
package frame

// Result is the outcome of advancing an Iterator.
type Result int

// Recognized Next outcomes.
const (
	// ResultMalformed means the container is corrupt at the current
	// position; the iterator must not be advanced further.
	ResultMalformed Result = iota - 1
	// ResultEnd means the container is exhausted; iteration is done.
	ResultEnd
	// ResultOK means CurrentType and CurrentDataLen are now defined.
	ResultOK
)

// Iterator is the shared contract every frame/box/segment/entry cursor in
// this package implements.
//
// After Next returns ResultOK, CurrentType and CurrentDataLen are defined
// and the frame's data has not yet been read. After Read, the returned
// bytes are valid until the next call to Next, Read, or Close on the same
// Iterator.
type Iterator interface {
	// Next advances to the next frame, returning ResultOK, ResultEnd, or
	// ResultMalformed.
	Next() (Result, error)
	// CurrentType identifies the kind of the frame Next just positioned
	// on (a FLAC block type, an ID3v2 frame id, a BMFF box type, ...).
	// Its dynamic type varies per iterator implementation.
	CurrentType() any
	// CurrentDataLen is the byte length of the current frame's payload.
	CurrentDataLen() int64
	// Read returns the current frame's full payload.
	Read() ([]byte, error)
	// Close releases the iterator. It never closes the stream it was
	// constructed over.
	Close() error
}
