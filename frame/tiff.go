package frame

import (
	"github.com/fmdscan/fmd/stream"
)

// TIFFByteOrder is the endianness an IFD's entries are encoded in, chosen
// by the file's 2-byte signature: "II" for little-endian, "MM" for
// big-endian.
type TIFFByteOrder int

// Recognized byte orders.
const (
	TIFFLittleEndian TIFFByteOrder = iota
	TIFFBigEndian
)

// TIFFType is the 2-byte type code of a TIFF IFD entry.
type TIFFType uint16

// Recognized entry types and their encoded width in bytes.
const (
	TIFFByte      TIFFType = 1
	TIFFASCII     TIFFType = 2
	TIFFShort     TIFFType = 3
	TIFFLong      TIFFType = 4
	TIFFRational  TIFFType = 5
	TIFFSByte     TIFFType = 6
	TIFFUndefined TIFFType = 7
	TIFFSShort    TIFFType = 8
	TIFFSLong     TIFFType = 9
	TIFFSRational TIFFType = 10
	TIFFFloat     TIFFType = 11
	TIFFDouble    TIFFType = 12
)

// TIFFTypeSize returns the byte width of one value of the given type, or 0
// for an unrecognized type.
func TIFFTypeSize(t TIFFType) int {
	switch t {
	case TIFFByte, TIFFASCII, TIFFSByte, TIFFUndefined:
		return 1
	case TIFFShort, TIFFSShort:
		return 2
	case TIFFLong, TIFFSLong, TIFFFloat:
		return 4
	case TIFFRational, TIFFSRational, TIFFDouble:
		return 8
	default:
		return 0
	}
}

// TIFFEntry is one 12-byte IFD entry: {uint16 tag, uint16 type, uint32
// count, 4-byte value-or-external-offset}.
type TIFFEntry struct {
	Tag    uint16
	Type   TIFFType
	Count  uint32
	Raw    [4]byte // the inline value, or the external offset, byte-order-dependent.
}

// ReadU16 decodes a 2-byte value per order; exported so probe's tag
// handlers can decode SHORT values without duplicating endianness logic.
func ReadU16(b []byte, order TIFFByteOrder) uint16 { return readU16(b, order) }

// ReadU32 decodes a 4-byte value per order; exported so probe's tag
// handlers can decode LONG values and external-offset pointers.
func ReadU32(b []byte, order TIFFByteOrder) uint32 { return readU32(b, order) }

// readU16 / readU32 decode according to the iterator's byte order.
func readU16(b []byte, order TIFFByteOrder) uint16 {
	if order == TIFFLittleEndian {
		return uint16(b[0]) | uint16(b[1])<<8
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

func readU32(b []byte, order TIFFByteOrder) uint32 {
	if order == TIFFLittleEndian {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// TIFFIFDIterator walks the entries of a single Image File Directory:
// {uint16 count, count x 12-byte entry, uint32 next-IFD-offset}. Entries
// must appear in strictly ascending tag order; Next enforces that and
// reports a violation as ResultMalformed rather than panicking.
type TIFFIFDIterator struct {
	s     stream.Stream
	order TIFFByteOrder
	offs  int64 // absolute offset of the next entry.

	count   uint16
	idx     uint16
	lastTag int32 // -1 until the first entry is read.

	curEntry TIFFEntry
	nextIFD  uint32
	done     bool
}

// NewTIFFIFDIterator returns an iterator over the IFD at absolute offset
// ifdOffset in s, encoded with the given byte order.
func NewTIFFIFDIterator(s stream.Stream, ifdOffset int64, order TIFFByteOrder) (*TIFFIFDIterator, error) {
	hdr, err := s.Get(ifdOffset, 2)
	if err != nil {
		return nil, err
	}
	count := readU16(hdr, order)
	return &TIFFIFDIterator{
		s:       s,
		order:   order,
		offs:    ifdOffset + 2,
		count:   count,
		lastTag: -1,
	}, nil
}

// Next reads the next entry, returning ResultMalformed (without advancing
// further) if its tag is not strictly greater than the previous entry's.
func (it *TIFFIFDIterator) Next() (Result, error) {
	if it.done || it.idx >= it.count {
		if !it.done {
			nextOffs := it.offs
			if raw, err := it.s.Get(nextOffs, 4); err == nil {
				it.nextIFD = readU32(raw, it.order)
			}
			it.done = true
		}
		return ResultEnd, nil
	}
	raw, err := it.s.Get(it.offs, 12)
	if err != nil {
		return ResultMalformed, err
	}
	tag := readU16(raw[0:2], it.order)
	if int32(tag) <= it.lastTag {
		it.done = true
		return ResultMalformed, nil
	}
	it.lastTag = int32(tag)

	entry := TIFFEntry{
		Tag:   tag,
		Type:  TIFFType(readU16(raw[2:4], it.order)),
		Count: readU32(raw[4:8], it.order),
	}
	copy(entry.Raw[:], raw[8:12])

	it.curEntry = entry
	it.offs += 12
	it.idx++
	return ResultOK, nil
}

// CurrentType returns the current entry's TIFFEntry (the whole struct, not
// just its tag, since decoders need type and count to interpret the
// value).
func (it *TIFFIFDIterator) CurrentType() any { return it.curEntry }

// CurrentDataLen returns the encoded byte length of the current entry's
// value (TIFFTypeSize(entry.Type) * entry.Count), which may exceed 4 and
// therefore live at an external offset rather than inline in Raw.
func (it *TIFFIFDIterator) CurrentDataLen() int64 {
	return int64(TIFFTypeSize(it.curEntry.Type)) * int64(it.curEntry.Count)
}

// Read resolves the current entry's value: if it fits in the inline 4
// bytes it is decoded directly from Raw, otherwise Raw is treated as an
// external offset and read from the stream.
func (it *TIFFIFDIterator) Read() ([]byte, error) {
	n := it.CurrentDataLen()
	if n <= 4 {
		return it.curEntry.Raw[:n], nil
	}
	offset := int64(readU32(it.curEntry.Raw[:], it.order))
	if offset+n > it.s.Size() {
		return nil, &stream.Error{Kind: stream.KindRange, Op: "tiff external value"}
	}
	return it.s.Get(offset, int(n))
}

// NextIFDOffset returns the offset of the following IFD (0 if none),
// valid once Next has returned ResultEnd.
func (it *TIFFIFDIterator) NextIFDOffset() uint32 { return it.nextIFD }

// Close is a no-op; TIFFIFDIterator holds no resources of its own.
func (it *TIFFIFDIterator) Close() error { return nil }
