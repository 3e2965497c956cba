package frame

import (
	"bytes"
	"testing"

	"github.com/fmdscan/fmd/stream"
)

// memStream is an in-memory stream.Stream used to exercise iterators
// without touching the filesystem.
type memStream struct {
	data []byte
}

func newMemStream(data []byte) *memStream { return &memStream{data: data} }

func (m *memStream) Size() int64 { return int64(len(m.data)) }

func (m *memStream) Get(offs int64, length int) ([]byte, error) {
	if offs < 0 {
		offs = int64(len(m.data)) + offs
	}
	if offs < 0 || length < 0 || offs+int64(length) > int64(len(m.data)) {
		return nil, &stream.Error{Kind: stream.KindRange, Op: "get"}
	}
	return m.data[offs : offs+int64(length)], nil
}

func (m *memStream) Close() error { return nil }

func buildFLACBlock(isLast bool, blockType byte, payload []byte) []byte {
	var hdr byte
	if isLast {
		hdr = 0x80
	}
	hdr |= blockType & 0x7F
	n := len(payload)
	return append([]byte{hdr, byte(n >> 16), byte(n >> 8), byte(n)}, payload...)
}

func TestFLACBlockIteratorStreamInfo(t *testing.T) {
	payload := make([]byte, 34)
	data := append([]byte("fLaC"), buildFLACBlock(true, 0, payload)...)
	s := newMemStream(data)
	it := NewFLACBlockIterator(s)

	res, err := it.Next()
	if err != nil || res != ResultOK {
		t.Fatalf("Next() = %v, %v; want ResultOK", res, err)
	}
	if it.CurrentType().(FLACBlockType) != FLACBlockStreamInfo {
		t.Errorf("CurrentType = %v; want StreamInfo", it.CurrentType())
	}
	if it.CurrentDataLen() != 34 {
		t.Errorf("CurrentDataLen = %d; want 34", it.CurrentDataLen())
	}
	res, err = it.Next()
	if err != nil || res != ResultEnd {
		t.Fatalf("second Next() = %v, %v; want ResultEnd (last block)", res, err)
	}
}

func TestID3v2FrameIteratorRejectsV2(t *testing.T) {
	hdr := []byte{'I', 'D', '3', 2, 0, 0, 0, 0, 0, 10}
	s := newMemStream(hdr)
	_, err := NewID3v2FrameIterator(s)
	if err == nil {
		t.Fatal("expected error for ID3v2.2")
	}
	serr, ok := err.(*stream.Error)
	if !ok || serr.Kind != stream.KindNotSupported {
		t.Fatalf("expected KindNotSupported, got %v", err)
	}
}

func TestID3v2FrameIteratorWalksFrames(t *testing.T) {
	frame := append([]byte("TIT2"), 0, 0, 0, 6, 0, 0) // size=6
	frame = append(frame, 0) // encoding byte: ISO-8859-1
	frame = append(frame, []byte("Hello")...)

	hdr := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, byte(len(frame))}
	data := append(hdr, frame...)
	s := newMemStream(data)

	it, err := NewID3v2FrameIterator(s)
	if err != nil {
		t.Fatal(err)
	}
	res, err := it.Next()
	if err != nil || res != ResultOK {
		t.Fatalf("Next() = %v, %v", res, err)
	}
	if it.CurrentType().(ID3v2FrameID) != "TIT2" {
		t.Errorf("CurrentType = %v; want TIT2", it.CurrentType())
	}
	payload, err := it.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload[1:], []byte("Hello")) {
		t.Errorf("payload text = %q; want Hello", payload[1:])
	}
}

func buildBMFFBox(boxType string, payload []byte) []byte {
	n := len(payload) + 8
	return append([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n), boxType[0], boxType[1], boxType[2], boxType[3]}, payload...)
}

func TestBMFFBoxIteratorSizeVariants(t *testing.T) {
	payload := []byte("payload-data")

	normal := buildBMFFBox("test", payload)

	var zeroSized []byte
	zeroSized = append(zeroSized, 0, 0, 0, 0, 't', 'e', 's', 't')
	zeroSized = append(zeroSized, payload...)

	var extended []byte
	totalSize := uint64(len(payload) + 16)
	extended = append(extended, 0, 0, 0, 1, 't', 'e', 's', 't')
	extended = append(extended,
		byte(totalSize>>56), byte(totalSize>>48), byte(totalSize>>40), byte(totalSize>>32),
		byte(totalSize>>24), byte(totalSize>>16), byte(totalSize>>8), byte(totalSize))
	extended = append(extended, payload...)

	for name, data := range map[string][]byte{"normal": normal, "size0": zeroSized, "size1": extended} {
		t.Run(name, func(t *testing.T) {
			s := newMemStream(data)
			it := NewBMFFBoxIterator(s, 0, s.Size())
			res, err := it.Next()
			if err != nil || res != ResultOK {
				t.Fatalf("Next() = %v, %v", res, err)
			}
			if it.CurrentType().(BMFFBoxType) != "test" {
				t.Errorf("CurrentType = %v; want test", it.CurrentType())
			}
			got, err := it.Read()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Read() = %q; want %q", got, payload)
			}
			res, _ = it.Next()
			if res != ResultEnd {
				t.Errorf("second Next() = %v; want ResultEnd", res)
			}
		})
	}
}

func TestJPEGSegmentIteratorSOIEOI(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0, 4, 'h', 'i', 0xFF, 0xD9}
	s := newMemStream(data)
	it := NewJPEGSegmentIterator(s)

	res, _ := it.Next()
	if res != ResultOK || it.CurrentType().(JPEGMarker) != JPEGMarkerSOI {
		t.Fatalf("first segment = %v, %v; want SOI", res, it.CurrentType())
	}
	res, _ = it.Next()
	if res != ResultOK || it.CurrentType().(JPEGMarker) != JPEGMarker(0xE1) {
		t.Fatalf("second segment = %v, %v; want APP1", res, it.CurrentType())
	}
	payload, err := it.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, []byte("hi")) {
		t.Errorf("APP1 payload = %q; want hi", payload)
	}
	res, _ = it.Next()
	if res != ResultOK || it.CurrentType().(JPEGMarker) != JPEGMarkerEOI {
		t.Fatalf("third segment = %v; want EOI", res)
	}
	res, _ = it.Next()
	if res != ResultEnd {
		t.Errorf("Next() after EOI = %v; want ResultEnd", res)
	}
}

func TestJPEGSegmentIteratorRejectsShortLength(t *testing.T) {
	data := []byte{0xFF, 0xE1, 0, 1}
	s := newMemStream(data)
	it := NewJPEGSegmentIterator(s)
	res, _ := it.Next()
	if res != ResultMalformed {
		t.Fatalf("Next() = %v; want ResultMalformed for length < 2", res)
	}
}

func buildTIFFEntry(tag uint16, typ TIFFType, count uint32, raw [4]byte, order TIFFByteOrder) []byte {
	b := make([]byte, 12)
	putU16(b[0:2], tag, order)
	putU16(b[2:4], uint16(typ), order)
	putU32(b[4:8], count, order)
	copy(b[8:12], raw[:])
	return b
}

func putU16(b []byte, v uint16, order TIFFByteOrder) {
	if order == TIFFLittleEndian {
		b[0], b[1] = byte(v), byte(v>>8)
	} else {
		b[0], b[1] = byte(v>>8), byte(v)
	}
}

func putU32(b []byte, v uint32, order TIFFByteOrder) {
	if order == TIFFLittleEndian {
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	} else {
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
}

func TestTIFFIFDIteratorAscendingTags(t *testing.T) {
	order := TIFFLittleEndian
	var data []byte
	countBuf := make([]byte, 2)
	putU16(countBuf, 2, order)
	data = append(data, countBuf...)
	data = append(data, buildTIFFEntry(256, TIFFShort, 1, [4]byte{1, 0, 0, 0}, order)...) // width
	data = append(data, buildTIFFEntry(257, TIFFShort, 1, [4]byte{2, 0, 0, 0}, order)...) // height
	data = append(data, []byte{0, 0, 0, 0}...)                                           // next IFD = 0

	s := newMemStream(data)
	it, err := NewTIFFIFDIterator(s, 0, order)
	if err != nil {
		t.Fatal(err)
	}
	res, err := it.Next()
	if err != nil || res != ResultOK {
		t.Fatalf("Next() #1 = %v, %v", res, err)
	}
	res, err = it.Next()
	if err != nil || res != ResultOK {
		t.Fatalf("Next() #2 = %v, %v", res, err)
	}
	res, _ = it.Next()
	if res != ResultEnd {
		t.Fatalf("Next() #3 = %v; want ResultEnd", res)
	}
}

func TestTIFFIFDIteratorDescendingTagsIsMalformed(t *testing.T) {
	order := TIFFBigEndian
	var data []byte
	countBuf := make([]byte, 2)
	putU16(countBuf, 2, order)
	data = append(data, countBuf...)
	data = append(data, buildTIFFEntry(300, TIFFShort, 1, [4]byte{}, order)...)
	data = append(data, buildTIFFEntry(200, TIFFShort, 1, [4]byte{}, order)...) // descending: malformed.
	data = append(data, []byte{0, 0, 0, 0}...)

	s := newMemStream(data)
	it, err := NewTIFFIFDIterator(s, 0, order)
	if err != nil {
		t.Fatal(err)
	}
	if res, err := it.Next(); err != nil || res != ResultOK {
		t.Fatalf("first Next() = %v, %v; want ResultOK", res, err)
	}
	res, err := it.Next()
	if err != nil {
		t.Fatalf("second Next() returned an error, want ResultMalformed without panicking: %v", err)
	}
	if res != ResultMalformed {
		t.Fatalf("second Next() = %v; want ResultMalformed for a descending tag", res)
	}
}
