package probe

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/frame"
	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// decodeTIFF parses a TIFF 6.0 file: byte order from the 2-byte signature,
// the IFD 0 offset at byte 4, then IFD 0's recognized tags, descending
// into the EXIF and GPS sub-IFDs when their pointer tags are present.
func decodeTIFF(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	hdr, err := s.Get(0, 8)
	if err != nil {
		return errors.Wrap(err, "tiff: read header")
	}
	var order frame.TIFFByteOrder
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		order = frame.TIFFLittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		order = frame.TIFFBigEndian
	default:
		return errors.New("tiff: invalid byte-order signature")
	}
	ifd0Offset := int64(frame.ReadU32(hdr[4:8], order))

	var exifIFD, gpsIFD int64 = -1, -1
	sawIFD0 := false
	err = walkTIFFIFD(s, ifd0Offset, order, tiffBaselineTags, rec, log, func(tag uint16, typ frame.TIFFType, data []byte) {
		sawIFD0 = true
		switch tag {
		case tagImageWidth:
			rec.Emit(meta.NewElement(meta.ElemFrameWidth, meta.IntValue(tiffValueAsInt(typ, data, order))))
		case tagImageHeight:
			rec.Emit(meta.NewElement(meta.ElemFrameHeight, meta.IntValue(tiffValueAsInt(typ, data, order))))
		case tagBitsPerSample:
			rec.Emit(meta.NewElement(meta.ElemBitsPerSample, meta.IntValue(sumTIFFShorts(data, order))))
		case tagSamplesPerPixel:
			rec.Emit(meta.NewElement(meta.ElemNumChannels, meta.IntValue(tiffValueAsInt(typ, data, order))))
		case tagDocumentName:
			rec.Emit(meta.NewElement(meta.ElemTitle, meta.TextValue(tiffASCII(data))))
		case tagImageDesc:
			rec.Emit(meta.NewElement(meta.ElemDescription, meta.TextValue(tiffASCII(data))))
		case tagMake, tagModel, tagSoftware:
			rec.Emit(meta.NewElement(meta.ElemCreator, meta.TextValue(tiffASCII(data))))
		case tagArtist:
			rec.Emit(meta.NewElement(meta.ElemArtist, meta.TextValue(tiffASCII(data))))
		case tagExifIFDPointer:
			exifIFD = int64(frame.ReadU32(data, order))
		case tagGPSIFDPointer:
			gpsIFD = int64(frame.ReadU32(data, order))
		}
	})
	if err != nil {
		return err
	}
	if !sawIFD0 {
		return errors.New("tiff: empty IFD 0")
	}

	if exifIFD >= 0 {
		walkTIFFIFD(s, exifIFD, order, tiffExifTags, rec, log, func(tag uint16, typ frame.TIFFType, data []byte) {
			switch tag {
			case tagExposureTime:
				num, den := tiffRational(data, typ, order)
				rec.Emit(meta.NewElement(meta.ElemExposureTime, meta.RationalValue(num, den)))
			case tagFNumber:
				num, den := tiffRational(data, typ, order)
				if den != 0 {
					rec.Emit(meta.NewElement(meta.ElemFNumber, meta.FracValue(float64(num)/float64(den))))
				}
			case tagISOSpeed:
				rec.Emit(meta.NewElement(meta.ElemISOSpeed, meta.IntValue(tiffValueAsInt(typ, data, order))))
			case tagFocalLength:
				num, den := tiffRational(data, typ, order)
				if den != 0 {
					rec.Emit(meta.NewElement(meta.ElemFocalLength, meta.FracValue(float64(num)/float64(den))))
				}
			case tagFocalLength35:
				rec.Emit(meta.NewElement(meta.ElemFocalLength35, meta.FracValue(float64(tiffValueAsInt(typ, data, order)))))
			}
		})
	}
	if gpsIFD >= 0 {
		// GPS data is read and validated but no elements are emitted.
		walkTIFFIFD(s, gpsIFD, order, tiffGPSTags, rec, log, func(uint16, frame.TIFFType, []byte) {})
	}

	rec.Type = meta.TypeRaster
	rec.MIME = "image/tiff"
	return nil
}

// walkTIFFIFD walks one IFD at offset, validating each entry against table
// (the caller picks tiffBaselineTags, tiffExifTags, or tiffGPSTags to match
// which IFD is being walked) and invoking handle for every tag that passes
// validation. Unrecognized tags or tags with an unexpected type/count are
// skipped with a format log entry, never fatal. A descending-tag violation
// (reported by the iterator as ResultMalformed) stops walking this IFD only.
func walkTIFFIFD(s stream.Stream, offset int64, order frame.TIFFByteOrder, table map[uint16]tiffTagSpec, rec *meta.FileRecord, log meta.LogFunc, handle func(tag uint16, typ frame.TIFFType, data []byte)) error {
	it, err := frame.NewTIFFIFDIterator(s, offset, order)
	if err != nil {
		return errors.Wrap(err, "tiff: open ifd")
	}
	for {
		res, err := it.Next()
		if err != nil {
			return errors.Wrap(err, "tiff: read ifd entry")
		}
		if res == frame.ResultMalformed {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "tiff: ifd entries out of ascending-tag order")
			}
			return nil
		}
		if res == frame.ResultEnd {
			return nil
		}
		entry := it.CurrentType().(frame.TIFFEntry)
		spec, ok := table[entry.Tag]
		if !ok {
			continue // unrecognized tag, not an error.
		}
		if !typeAllowed(entry.Type, spec.types) || (spec.count != 0 && int(entry.Count) != spec.count) {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "tiff: tag %d: unexpected type/count", entry.Tag)
			}
			continue
		}
		data, err := it.Read()
		if err != nil {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "tiff: tag %d: %v", entry.Tag, err)
			}
			continue
		}
		handle(entry.Tag, entry.Type, data)
	}
}

func tiffValueAsInt(typ frame.TIFFType, data []byte, order frame.TIFFByteOrder) int64 {
	switch typ {
	case frame.TIFFShort, frame.TIFFSShort:
		return int64(frame.ReadU16(data, order))
	case frame.TIFFLong, frame.TIFFSLong:
		return int64(frame.ReadU32(data, order))
	case frame.TIFFByte, frame.TIFFSByte:
		return int64(data[0])
	default:
		return 0
	}
}

// sumTIFFShorts sums every 16-bit value in data, used for BitsPerSample
// entries whose count spans one value per image sample.
func sumTIFFShorts(data []byte, order frame.TIFFByteOrder) int64 {
	var sum int64
	for off := 0; off+2 <= len(data); off += 2 {
		sum += int64(frame.ReadU16(data[off:off+2], order))
	}
	return sum
}

// tiffRational reads a TIFF RATIONAL/SRATIONAL value: two 4-byte
// components, numerator then denominator.
func tiffRational(data []byte, typ frame.TIFFType, order frame.TIFFByteOrder) (int32, int32) {
	if len(data) < 8 {
		return 0, 1
	}
	if typ == frame.TIFFSRational {
		return int32(frame.ReadU32(data[0:4], order)), int32(frame.ReadU32(data[4:8], order))
	}
	return int32(frame.ReadU32(data[0:4], order)), int32(frame.ReadU32(data[4:8], order))
}

// tiffASCII trims the trailing NUL(s) TIFF ASCII values are terminated
// with.
func tiffASCII(data []byte) string {
	return strings.TrimRight(string(data), "\x00")
}
