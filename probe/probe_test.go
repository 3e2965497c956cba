package probe

import (
	"math"
	"testing"

	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// memStream is an in-memory stream.Stream for exercising Dispatch without
// touching the filesystem.
type memStream struct{ data []byte }

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

// pad right-pads data to at least 256 bytes, the probe dispatcher's
// minimum file size.
func pad(data []byte) []byte {
	for len(data) < minProbeSize {
		data = append(data, 0)
	}
	return data
}

func flacBlockHeader(isLast bool, blockType byte, length int) []byte {
	var h byte
	if isLast {
		h = 0x80
	}
	h |= blockType & 0x7F
	return []byte{h, byte(length >> 16), byte(length >> 8), byte(length)}
}

func packFLACStreamInfo(sampleRate uint32, channels, bitsPerSample uint8, totalSamples uint64) []byte {
	payload := make([]byte, 34)
	// MinBlockSize/MaxBlockSize/MinFrameSize/MaxFrameSize: arbitrary placeholders.
	payload[0], payload[1] = 0x10, 0x00
	payload[2], payload[3] = 0x10, 0x00

	val := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bitsPerSample-1)<<36 | totalSamples
	for i := 0; i < 8; i++ {
		payload[10+i] = byte(val >> uint(56-8*i))
	}
	return payload
}

func le32(n int) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

func buildVorbisComment(vendor string, comments []string) []byte {
	var out []byte
	out = append(out, le32(len(vendor))...)
	out = append(out, []byte(vendor)...)
	out = append(out, le32(len(comments))...)
	for _, c := range comments {
		out = append(out, le32(len(c))...)
		out = append(out, []byte(c)...)
	}
	return out
}

func TestDispatchFLACMinimal(t *testing.T) {
	info := packFLACStreamInfo(44100, 2, 16, 441000)
	var data []byte
	data = append(data, []byte("fLaC")...)
	data = append(data, flacBlockHeader(true, 0, len(info))...)
	data = append(data, info...)
	data = pad(data)

	rec := meta.NewFileRecord("test.flac", nil)
	s := newMemStream(data)
	if err := Dispatch(s, rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.Type != meta.TypeAudio || rec.MIME != "audio/flac" {
		t.Fatalf("type/mime = %v/%s; want audio/audio/flac", rec.Type, rec.MIME)
	}
	want := map[meta.ElementType]bool{
		meta.ElemSamplingRate:   false,
		meta.ElemNumChannels:    false,
		meta.ElemBitsPerSample:  false,
		meta.ElemDuration:       false,
	}
	for _, e := range rec.Elements {
		switch e.Type {
		case meta.ElemSamplingRate:
			if e.Value.Int != 44100 {
				t.Errorf("sampling_rate = %d; want 44100", e.Value.Int)
			}
			want[e.Type] = true
		case meta.ElemNumChannels:
			if e.Value.Int != 2 {
				t.Errorf("num_channels = %d; want 2", e.Value.Int)
			}
			want[e.Type] = true
		case meta.ElemBitsPerSample:
			if e.Value.Int != 16 {
				t.Errorf("bits_per_sample = %d; want 16", e.Value.Int)
			}
			want[e.Type] = true
		case meta.ElemDuration:
			if math.Abs(e.Value.Frac-10.0) > 1e-9 {
				t.Errorf("duration = %g; want 10.0", e.Value.Frac)
			}
			want[e.Type] = true
		}
	}
	for elemType, seen := range want {
		if !seen {
			t.Errorf("missing expected element %v", elemType)
		}
	}
}

func TestDispatchFLACVorbisComment(t *testing.T) {
	info := packFLACStreamInfo(44100, 2, 16, 441000)
	vc := buildVorbisComment("ref libFLAC 1.3.3", []string{"TITLE=Example"})

	var data []byte
	data = append(data, []byte("fLaC")...)
	data = append(data, flacBlockHeader(false, 0, len(info))...)
	data = append(data, info...)
	data = append(data, flacBlockHeader(true, 4, len(vc))...)
	data = append(data, vc...)
	data = pad(data)

	rec := meta.NewFileRecord("test.flac", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	var gotTitle, gotCreator string
	for _, e := range rec.Elements {
		if e.Type == meta.ElemTitle {
			gotTitle = e.Value.Text
		}
		if e.Type == meta.ElemCreator {
			gotCreator = e.Value.Text
		}
	}
	if gotTitle != "Example" {
		t.Errorf("title = %q; want Example", gotTitle)
	}
	if gotCreator != "ref libFLAC 1.3.3" {
		t.Errorf("creator = %q; want ref libFLAC 1.3.3", gotCreator)
	}
}

func synchsafeBytes(n int) []byte {
	return []byte{
		byte((n >> 21) & 0x7F),
		byte((n >> 14) & 0x7F),
		byte((n >> 7) & 0x7F),
		byte(n & 0x7F),
	}
}

func TestDispatchID3v2(t *testing.T) {
	framePayload := append([]byte{0}, []byte("Hello")...)
	frameHdr := append([]byte("TIT2"), 0, 0, 0, byte(len(framePayload)), 0, 0)
	tagBody := append(frameHdr, framePayload...)

	hdr := append([]byte("ID3"), 3, 0, 0)
	hdr = append(hdr, synchsafeBytes(len(tagBody))...)
	data := append(hdr, tagBody...)
	data = pad(data)

	rec := meta.NewFileRecord("test.mp3", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.Type != meta.TypeAudio || rec.MIME != "audio/mpeg" {
		t.Fatalf("type/mime = %v/%s; want audio/audio/mpeg", rec.Type, rec.MIME)
	}
	var title string
	for _, e := range rec.Elements {
		if e.Type == meta.ElemTitle {
			title = e.Value.Text
		}
	}
	if title != "Hello" {
		t.Errorf("title = %q; want Hello", title)
	}
}

func be32b(n int) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func buildBox(boxType string, payload []byte) []byte {
	size := len(payload) + 8
	out := append(be32b(size), []byte(boxType)...)
	return append(out, payload...)
}

func TestDispatchMP4(t *testing.T) {
	ftyp := buildBox("ftyp", append([]byte("mp42"), 0, 0, 0, 0)...)

	mvhd := append([]byte{0, 0, 0, 0}, make([]byte, 8)...) // version/flags + creation/modification time
	mvhd = append(mvhd, be32b(1000)...)                    // timescale
	mvhd = append(mvhd, be32b(60000)...)                   // duration

	dataBox := buildBox("data", append([]byte{0, 0, 0, 1, 0, 0, 0, 0}, []byte("Song")...))
	namBox := buildBox(string([]byte{0xA9, 'n', 'a', 'm'}), dataBox)
	ilst := buildBox("ilst", namBox)
	metaBox := buildBox("meta", append([]byte{0, 0, 0, 0}, ilst...))
	udta := buildBox("udta", metaBox)
	mvhdBox := buildBox("mvhd", mvhd)
	moov := buildBox("moov", append(mvhdBox, udta...))

	var data []byte
	data = append(data, ftyp...)
	data = append(data, moov...)
	data = pad(data)

	rec := meta.NewFileRecord("test.mp4", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.Type != meta.TypeVideo || rec.MIME != "video/mp4" {
		t.Fatalf("type/mime = %v/%s; want video/video/mp4", rec.Type, rec.MIME)
	}
	var gotDuration float64
	var gotTitle string
	var sawDuration bool
	for _, e := range rec.Elements {
		if e.Type == meta.ElemDuration {
			gotDuration = e.Value.Frac
			sawDuration = true
		}
		if e.Type == meta.ElemTitle {
			gotTitle = e.Value.Text
		}
	}
	if !sawDuration || math.Abs(gotDuration-60.0) > 1e-9 {
		t.Errorf("duration = %g (seen=%v); want 60.0", gotDuration, sawDuration)
	}
	if gotTitle != "Song" {
		t.Errorf("title = %q; want Song", gotTitle)
	}
}

func tiffEntry(tag uint16, typ uint16, count uint32, raw [4]byte) []byte {
	b := make([]byte, 12)
	b[0], b[1] = byte(tag), byte(tag>>8)
	b[2], b[3] = byte(typ), byte(typ>>8)
	b[4], b[5], b[6], b[7] = byte(count), byte(count>>8), byte(count>>16), byte(count>>24)
	copy(b[8:12], raw[:])
	return b
}

// buildTIFF constructs a little-endian TIFF file with IFD 0 entries for
// width, height, bits-per-sample, samples-per-pixel, and artist.
func buildTIFF() []byte {
	// IFD 0 carries exactly the tags the baseline table validates: width,
	// height, bits-per-sample, samples-per-pixel, artist, in ascending tag
	// order.
	type ent struct {
		tag, typ uint16
		count    uint32
		raw      [4]byte
	}
	list := []ent{
		{256, 3, 1, [4]byte{0x80, 0x07, 0, 0}},
		{257, 3, 1, [4]byte{0x38, 0x04, 0, 0}},
		{258, 3, 3, [4]byte{0, 0, 0, 0}}, // filled with external offset below
		{277, 3, 1, [4]byte{3, 0, 0, 0}},
		{315, 2, 4, [4]byte{'A', 'd', 'a', 0}}, // "Ada\x00" fits the 4 inline value bytes
	}

	const headerSize = 8
	ifdHeaderSize := 2 + len(list)*12 + 4
	extOffset := headerSize + ifdHeaderSize

	bitsPerSampleExt := []byte{8, 0, 8, 0, 8, 0} // three 16-bit values, 8 bits each.

	list[2].raw = le32raw(extOffset)

	var ifd []byte
	countBuf := []byte{byte(len(list)), 0}
	ifd = append(ifd, countBuf...)
	for _, e := range list {
		ifd = append(ifd, tiffEntry(e.tag, e.typ, e.count, e.raw)...)
	}
	ifd = append(ifd, 0, 0, 0, 0) // next IFD offset = 0

	var out []byte
	out = append(out, 'I', 'I', 0x2A, 0)
	out = append(out, le32(headerSize)...)
	out = append(out, ifd...)
	out = append(out, bitsPerSampleExt...)
	return out
}

func le32raw(n int) [4]byte {
	b := le32(n)
	return [4]byte{b[0], b[1], b[2], b[3]}
}

func TestDispatchTIFF(t *testing.T) {
	data := pad(buildTIFF())
	rec := meta.NewFileRecord("test.tiff", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.Type != meta.TypeRaster || rec.MIME != "image/tiff" {
		t.Fatalf("type/mime = %v/%s; want raster/image/tiff", rec.Type, rec.MIME)
	}
	got := map[meta.ElementType]meta.Value{}
	for _, e := range rec.Elements {
		got[e.Type] = e.Value
	}
	if got[meta.ElemFrameWidth].Int != 1920 {
		t.Errorf("frame_width = %d; want 1920", got[meta.ElemFrameWidth].Int)
	}
	if got[meta.ElemFrameHeight].Int != 1080 {
		t.Errorf("frame_height = %d; want 1080", got[meta.ElemFrameHeight].Int)
	}
	if got[meta.ElemNumChannels].Int != 3 {
		t.Errorf("num_channels = %d; want 3", got[meta.ElemNumChannels].Int)
	}
	if got[meta.ElemBitsPerSample].Int != 24 {
		t.Errorf("bits_per_sample = %d; want 24", got[meta.ElemBitsPerSample].Int)
	}
	if got[meta.ElemArtist].Text != "Ada" {
		t.Errorf("artist = %q; want Ada", got[meta.ElemArtist].Text)
	}
}

// buildTIFFWithEXIF constructs a little-endian TIFF file whose IFD 0 carries
// an ExifIFDPointer tag, and whose EXIF sub-IFD carries FNumber and
// ISOSpeed entries, to exercise the EXIF-table validation path of
// walkTIFFIFD (as opposed to buildTIFF's IFD-0-only baseline tags).
func buildTIFFWithEXIF() []byte {
	type ent struct {
		tag, typ uint16
		count    uint32
		raw      [4]byte
	}
	ifd0 := []ent{
		{256, 3, 1, [4]byte{0x80, 0x07, 0, 0}},
		{257, 3, 1, [4]byte{0x38, 0x04, 0, 0}},
		{277, 3, 1, [4]byte{3, 0, 0, 0}},
		{tagExifIFDPointer, 4, 1, [4]byte{0, 0, 0, 0}}, // filled in below.
	}

	const headerSize = 8
	ifd0HeaderSize := 2 + len(ifd0)*12 + 4
	exifIFDOffset := headerSize + ifd0HeaderSize
	ifd0[3].raw = le32raw(exifIFDOffset)

	exifIFD := []ent{
		{tagFNumber, 5, 1, [4]byte{0, 0, 0, 0}},       // filled in below: offset to rational data.
		{tagISOSpeed, 3, 1, [4]byte{200, 0, 0, 0}},
	}
	exifIFDHeaderSize := 2 + len(exifIFD)*12 + 4
	fNumberExtOffset := exifIFDOffset + exifIFDHeaderSize
	exifIFD[0].raw = le32raw(fNumberExtOffset)
	fNumberExt := append(le32(28), le32(10)...) // f/2.8

	var ifd0Bytes []byte
	ifd0Bytes = append(ifd0Bytes, byte(len(ifd0)), 0)
	for _, e := range ifd0 {
		ifd0Bytes = append(ifd0Bytes, tiffEntry(e.tag, e.typ, e.count, e.raw)...)
	}
	ifd0Bytes = append(ifd0Bytes, 0, 0, 0, 0) // next IFD offset = 0

	var exifIFDBytes []byte
	exifIFDBytes = append(exifIFDBytes, byte(len(exifIFD)), 0)
	for _, e := range exifIFD {
		exifIFDBytes = append(exifIFDBytes, tiffEntry(e.tag, e.typ, e.count, e.raw)...)
	}
	exifIFDBytes = append(exifIFDBytes, 0, 0, 0, 0) // next IFD offset = 0

	var out []byte
	out = append(out, 'I', 'I', 0x2A, 0)
	out = append(out, le32(headerSize)...)
	out = append(out, ifd0Bytes...)
	out = append(out, exifIFDBytes...)
	out = append(out, fNumberExt...)
	return out
}

func TestDispatchTIFFWithEXIFSubIFD(t *testing.T) {
	data := pad(buildTIFFWithEXIF())
	rec := meta.NewFileRecord("test.tiff", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	got := map[meta.ElementType]meta.Value{}
	for _, e := range rec.Elements {
		got[e.Type] = e.Value
	}
	if v, ok := got[meta.ElemFNumber]; !ok || math.Abs(v.Frac-2.8) > 1e-9 {
		t.Errorf("fnumber = %+v; want ~2.8", v)
	}
	if got[meta.ElemISOSpeed].Int != 200 {
		t.Errorf("iso_speed = %d; want 200", got[meta.ElemISOSpeed].Int)
	}
}

func TestDispatchJPEGWithEXIF(t *testing.T) {
	tiffData := buildTIFF()
	app1Payload := append([]byte("Exif\x00\x00"), tiffData...)
	app1Len := len(app1Payload) + 2

	var data []byte
	data = append(data, 0xFF, 0xD8) // SOI
	data = append(data, 0xFF, 0xE1, byte(app1Len>>8), byte(app1Len))
	data = append(data, app1Payload...)
	data = append(data, 0xFF, 0xD9) // EOI
	data = pad(data)

	rec := meta.NewFileRecord("test.jpg", nil)
	if err := Dispatch(newMemStream(data), rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.MIME != "image/jpeg" {
		t.Errorf("mime = %q; want image/jpeg", rec.MIME)
	}
	var sawWidth bool
	for _, e := range rec.Elements {
		if e.Type == meta.ElemFrameWidth && e.Value.Int == 1920 {
			sawWidth = true
		}
	}
	if !sawWidth {
		t.Error("expected frame_width=1920 element carried through from the embedded TIFF payload")
	}
}
