package probe

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/frame"
	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// decodeFLAC iterates the metadata block chain following the "fLaC" magic,
// decoding block type 0 (stream info) and type 4 (Vorbis comment); other
// block types are skipped.
func decodeFLAC(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	it := frame.NewFLACBlockIterator(s)
	sawStreamInfo := false
	for {
		res, err := it.Next()
		if err != nil || res == frame.ResultMalformed {
			break
		}
		if res == frame.ResultEnd {
			break
		}
		switch it.CurrentType().(frame.FLACBlockType) {
		case frame.FLACBlockStreamInfo:
			payload, err := it.Read()
			if err != nil {
				return errors.Wrap(err, "flac: read stream info")
			}
			if err := decodeFLACStreamInfo(payload, rec); err != nil {
				if log != nil {
					log(rec.Path, meta.LevelFormat, "flac: stream info: %v", err)
				}
				continue
			}
			sawStreamInfo = true
		case frame.FLACBlockVorbisComment:
			payload, err := it.Read()
			if err != nil {
				if log != nil {
					log(rec.Path, meta.LevelFormat, "flac: read vorbis comment: %v", err)
				}
				continue
			}
			decodeVorbisComment(payload, rec, log)
		}
	}
	if !sawStreamInfo {
		return errors.New("flac: no stream info block found")
	}
	rec.Type = meta.TypeAudio
	rec.MIME = "audio/flac"
	return nil
}

// decodeFLACStreamInfo parses a 34-byte FLAC StreamInfo payload: 16 bits
// MinBlockSize, 16 MaxBlockSize, 24 MinFrameSize, 24 MaxFrameSize, 20
// sample rate, 3 channels-1, 5 bits-per-sample-1, 36 total sample count,
// then a 128-bit MD5 signature. The fields are walked with a sequential
// bit cursor rather than internal/bits's offset addressing, since every
// field here is read exactly once in order.
func decodeFLACStreamInfo(payload []byte, rec *meta.FileRecord) error {
	if len(payload) < 18 {
		return errors.New("stream info block shorter than 18 bytes")
	}
	br := bitio.NewReader(bytes.NewReader(payload))
	skip := func(n uint8) error {
		_, err := br.ReadBits(n)
		return err
	}
	if err := skip(16); err != nil { // MinBlockSize
		return errors.Wrap(err, "stream info: min block size")
	}
	if err := skip(16); err != nil { // MaxBlockSize
		return errors.Wrap(err, "stream info: max block size")
	}
	if err := skip(24); err != nil { // MinFrameSize
		return errors.Wrap(err, "stream info: min frame size")
	}
	if err := skip(24); err != nil { // MaxFrameSize
		return errors.Wrap(err, "stream info: max frame size")
	}
	sampleRateBits, err := br.ReadBits(20)
	if err != nil {
		return errors.Wrap(err, "stream info: sample rate")
	}
	channelsBits, err := br.ReadBits(3)
	if err != nil {
		return errors.Wrap(err, "stream info: channels")
	}
	bpsBits, err := br.ReadBits(5)
	if err != nil {
		return errors.Wrap(err, "stream info: bits per sample")
	}
	totalSamplesBits, err := br.ReadBits(36)
	if err != nil {
		return errors.Wrap(err, "stream info: total samples")
	}

	sampleRate := int64(sampleRateBits)
	channels := int64(channelsBits) + 1
	bitsPerSample := int64(bpsBits) + 1
	totalSamples := int64(totalSamplesBits)

	rec.Emit(meta.NewElement(meta.ElemSamplingRate, meta.IntValue(sampleRate)))
	rec.Emit(meta.NewElement(meta.ElemNumChannels, meta.IntValue(channels)))
	rec.Emit(meta.NewElement(meta.ElemBitsPerSample, meta.IntValue(bitsPerSample)))
	if sampleRate > 0 {
		duration := float64(totalSamples) / float64(sampleRate)
		rec.Emit(meta.NewElement(meta.ElemDuration, meta.FracValue(duration)))
	}
	return nil
}

// decodeVorbisComment parses a Vorbis comment block: all lengths are
// 32-bit little-endian. A length-prefixed vendor string is followed by a
// count of length-prefixed "key=value" comments.
func decodeVorbisComment(payload []byte, rec *meta.FileRecord, log meta.LogFunc) {
	off := 0
	readLen := func() (int, bool) {
		if off+4 > len(payload) {
			return 0, false
		}
		n := int(payload[off]) | int(payload[off+1])<<8 | int(payload[off+2])<<16 | int(payload[off+3])<<24
		off += 4
		return n, true
	}

	vendorLen, ok := readLen()
	if !ok || off+vendorLen > len(payload) {
		if log != nil {
			log(rec.Path, meta.LevelFormat, "flac: vorbis comment: truncated vendor string")
		}
		return
	}
	vendor := string(payload[off : off+vendorLen])
	off += vendorLen
	rec.Emit(meta.NewElement(meta.ElemCreator, meta.TextValue(vendor)))

	count, ok := readLen()
	if !ok {
		return
	}
	for i := 0; i < count; i++ {
		n, ok := readLen()
		if !ok || off+n > len(payload) {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "flac: vorbis comment: truncated comment %d", i)
			}
			return
		}
		comment := string(payload[off : off+n])
		off += n
		emitVorbisComment(comment, rec)
	}
}

func emitVorbisComment(comment string, rec *meta.FileRecord) {
	key, value, found := strings.Cut(comment, "=")
	if !found {
		return
	}
	switch strings.ToUpper(key) {
	case "TITLE":
		rec.Emit(meta.NewElement(meta.ElemTitle, meta.TextValue(value)))
	case "ALBUM":
		rec.Emit(meta.NewElement(meta.ElemAlbum, meta.TextValue(value)))
	case "ARTIST":
		rec.Emit(meta.NewElement(meta.ElemArtist, meta.TextValue(value)))
	case "PERFORMER":
		rec.Emit(meta.NewElement(meta.ElemPerformer, meta.TextValue(value)))
	case "DESCRIPTION":
		rec.Emit(meta.NewElement(meta.ElemDescription, meta.TextValue(value)))
	case "GENRE":
		rec.Emit(meta.NewElement(meta.ElemGenre, meta.TextValue(value)))
	case "DATE":
		rec.Emit(meta.NewElement(meta.ElemDate, meta.TextValue(value)))
	case "ISRC":
		rec.Emit(meta.NewElement(meta.ElemISRC, meta.TextValue(value)))
	case "TRACKNUMBER":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			rec.Emit(meta.NewElement(meta.ElemTrackNo, meta.IntValue(n)))
		}
		// Non-decimal track numbers are silently dropped per spec.
	}
}
