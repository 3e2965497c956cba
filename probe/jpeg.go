package probe

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/frame"
	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// exifAPP1Magic is the leading marker an APP1 segment carries when it
// wraps a TIFF-formatted EXIF payload.
var exifAPP1Magic = []byte("Exif\x00\x00")

// decodeJPEG iterates JPEG segments looking for an APP1 segment whose
// payload begins with the EXIF magic; the remainder of that segment is a
// TIFF-formatted payload decoded by constructing a ranged stream over it
// and invoking decodeTIFF.
func decodeJPEG(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	it := frame.NewJPEGSegmentIterator(s)
	sawEXIF := false
	for {
		res, err := it.Next()
		if err != nil || res == frame.ResultMalformed {
			break
		}
		if res == frame.ResultEnd {
			break
		}
		marker := it.CurrentType().(frame.JPEGMarker)
		if marker != 0xE1 {
			continue
		}
		payload, err := it.Read()
		if err != nil || len(payload) < len(exifAPP1Magic) {
			continue
		}
		if !bytes.Equal(payload[:len(exifAPP1Magic)], exifAPP1Magic) {
			continue
		}

		tiffStart := it.CurrentPayloadOffset() + int64(len(exifAPP1Magic))
		tiffLen := it.CurrentDataLen() - int64(len(exifAPP1Magic))
		ranged := stream.NewRangedStream(s, tiffStart, tiffLen)
		if err := decodeTIFF(ranged, rec, log); err != nil {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "jpeg: embedded exif: %v", err)
			}
			continue
		}
		sawEXIF = true
	}
	if !sawEXIF {
		return errors.New("jpeg: no APP1 EXIF segment found")
	}
	rec.MIME = "image/jpeg"
	return nil
}
