// Package bits extracts arbitrary-width bit fields from a byte buffer.
//
// Unlike a streaming bit reader, BitsBE and BitsLE address a fixed buffer at
// an explicit bit offset. Callers use them on bytes already fetched through
// a stream.Stream; the ID3v2 frame iterator decodes its synchsafe tag size
// with BitsBE.
package bits

// maxLen is the widest field either function will extract. FLAC's
// StreamInfo.SampleCount is a 36-bit field, the widest value any decoder in
// this repository needs.
const maxLen = 36

// BitsBE reads length bits starting at bitOffset from buf, most-significant
// bit first within each straddled byte, and returns them as a signed integer
// wide enough to hold 36 bits.
//
// The caller must guarantee buf addresses at least
// ceil((bitOffset+length)/8) bytes; BitsBE does not bounds-check.
func BitsBE(buf []byte, bitOffset, length int) int64 {
	if length == 0 {
		return 0
	}
	if length > maxLen {
		panic("bits.BitsBE: length exceeds 36 bits")
	}
	var x int64
	for i := 0; i < length; i++ {
		bit := bitOffset + i
		byteIdx := bit / 8
		bitInByte := 7 - uint(bit%8) // MSB-first within the byte.
		b := (buf[byteIdx] >> bitInByte) & 1
		x = x<<1 | int64(b)
	}
	return x
}

// BitsLE reads length bits starting at bitOffset from buf, least-significant
// bit first within each straddled byte, and returns them as a signed integer
// wide enough to hold 36 bits.
//
// The caller must guarantee buf addresses at least
// ceil((bitOffset+length)/8) bytes; BitsLE does not bounds-check.
func BitsLE(buf []byte, bitOffset, length int) int64 {
	if length == 0 {
		return 0
	}
	if length > maxLen {
		panic("bits.BitsLE: length exceeds 36 bits")
	}
	var x int64
	for i := length - 1; i >= 0; i-- {
		bit := bitOffset + i
		byteIdx := bit / 8
		bitInByte := uint(bit % 8) // LSB-first within the byte.
		b := (buf[byteIdx] >> bitInByte) & 1
		x = x<<1 | int64(b)
	}
	return x
}
