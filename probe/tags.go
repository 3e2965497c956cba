package probe

import "github.com/fmdscan/fmd/frame"

// tiffTagSpec declares the allowed encoded type(s) and an optional
// required value count for one recognized TIFF/EXIF tag. count == 0 means
// any count is accepted.
type tiffTagSpec struct {
	types []frame.TIFFType
	count int
}

func typeAllowed(t frame.TIFFType, allowed []frame.TIFFType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// Baseline TIFF tags recognized in IFD 0.
const (
	tagImageWidth      uint16 = 256
	tagImageHeight     uint16 = 257
	tagBitsPerSample   uint16 = 258
	tagDocumentName    uint16 = 269
	tagImageDesc       uint16 = 270
	tagMake            uint16 = 271
	tagModel           uint16 = 272
	tagSamplesPerPixel uint16 = 277
	tagSoftware        uint16 = 305
	tagArtist          uint16 = 315
	tagExifIFDPointer  uint16 = 34665
	tagGPSIFDPointer   uint16 = 34853
)

// EXIF sub-IFD tags recognized when an ExifIFD pointer is present.
const (
	tagExposureTime    uint16 = 33434
	tagFNumber         uint16 = 33437
	tagExposureProgram uint16 = 34850
	tagISOSpeed        uint16 = 34855
	tagFocalLength     uint16 = 37386
	tagFocalLength35   uint16 = 41989
)

// GPS sub-IFD tags recognized when a GPSInfo pointer is present. No
// elements are emitted from these yet, but entries are still validated
// against their expected type/count like any other IFD.
const (
	tagGPSLatitudeRef  uint16 = 1
	tagGPSLatitude     uint16 = 2
	tagGPSLongitudeRef uint16 = 3
	tagGPSLongitude    uint16 = 4
	tagGPSAltitudeRef  uint16 = 5
	tagGPSAltitude     uint16 = 6
)

var tiffBaselineTags = map[uint16]tiffTagSpec{
	tagImageWidth:      {types: []frame.TIFFType{frame.TIFFShort, frame.TIFFLong}, count: 1},
	tagImageHeight:     {types: []frame.TIFFType{frame.TIFFShort, frame.TIFFLong}, count: 1},
	tagBitsPerSample:   {types: []frame.TIFFType{frame.TIFFShort}},
	tagDocumentName:    {types: []frame.TIFFType{frame.TIFFASCII}},
	tagImageDesc:       {types: []frame.TIFFType{frame.TIFFASCII}},
	tagMake:            {types: []frame.TIFFType{frame.TIFFASCII}},
	tagModel:           {types: []frame.TIFFType{frame.TIFFASCII}},
	tagSamplesPerPixel: {types: []frame.TIFFType{frame.TIFFShort, frame.TIFFLong}, count: 1},
	tagSoftware:        {types: []frame.TIFFType{frame.TIFFASCII}},
	tagArtist:          {types: []frame.TIFFType{frame.TIFFASCII}},
	tagExifIFDPointer:  {types: []frame.TIFFType{frame.TIFFLong}, count: 1},
	tagGPSIFDPointer:   {types: []frame.TIFFType{frame.TIFFLong}, count: 1},
}

var tiffExifTags = map[uint16]tiffTagSpec{
	tagExposureTime:    {types: []frame.TIFFType{frame.TIFFRational}, count: 1},
	tagFNumber:         {types: []frame.TIFFType{frame.TIFFRational}, count: 1},
	tagExposureProgram: {types: []frame.TIFFType{frame.TIFFShort}, count: 1},
	tagISOSpeed:        {types: []frame.TIFFType{frame.TIFFShort}, count: 1},
	tagFocalLength:     {types: []frame.TIFFType{frame.TIFFRational}, count: 1},
	tagFocalLength35:   {types: []frame.TIFFType{frame.TIFFShort}, count: 1},
}

var tiffGPSTags = map[uint16]tiffTagSpec{
	tagGPSLatitudeRef:  {types: []frame.TIFFType{frame.TIFFASCII}, count: 2},
	tagGPSLatitude:     {types: []frame.TIFFType{frame.TIFFRational}, count: 3},
	tagGPSLongitudeRef: {types: []frame.TIFFType{frame.TIFFASCII}, count: 2},
	tagGPSLongitude:    {types: []frame.TIFFType{frame.TIFFRational}, count: 3},
	tagGPSAltitudeRef:  {types: []frame.TIFFType{frame.TIFFByte}, count: 1},
	tagGPSAltitude:     {types: []frame.TIFFType{frame.TIFFRational}, count: 1},
}
