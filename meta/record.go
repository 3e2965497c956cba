package meta

import (
	"fmt"
	"os"
	"time"
)

// FileType is a coarse classification of a probed file, assigned by the
// walker for directories and archives and by a decoder on a successful
// probe.
type FileType int

// Recognized file types.
const (
	TypeFile FileType = iota
	TypeDirectory
	TypeArchive
	TypeMedia
	TypeAudio
	TypeVideo
	TypeRaster
	TypeVector
	TypeText
	TypeRichText
	TypeSpreadsheet
	TypePresentation
	TypeMail
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeArchive:
		return "archive"
	case TypeMedia:
		return "media"
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeRaster:
		return "raster"
	case TypeVector:
		return "vector"
	case TypeText:
		return "text"
	case TypeRichText:
		return "richtext"
	case TypeSpreadsheet:
		return "spreadsheet"
	case TypePresentation:
		return "presentation"
	case TypeMail:
		return "mail"
	default:
		return "unknown"
	}
}

// defaultMIME is served to any file a decoder never typed.
const defaultMIME = "application/octet-stream"

// FileRecord is one entry in a scan's output chain: a regular file,
// directory, or archive member, together with whatever metadata a decoder
// managed to extract from it.
//
// A FileRecord is owned by the job that produced it until the caller drains
// and frees the chain; decoders mutate it only during probing.
type FileRecord struct {
	// Path is the file's location as presented by the walker. For archive
	// members this is an opaque identifier (archive path + "!" + entry
	// name), not necessarily resolvable on disk.
	Path string

	// Info is the filesystem stat block, nil for archive members whose
	// backing archive does not expose per-entry stat data.
	Info os.FileInfo

	// Type is the recognized file type. Zero value is TypeFile until a
	// decoder or the walker sets it.
	Type FileType

	// MIME borrows from a static table; empty until typed, and defaults
	// to "application/octet-stream" once a probe attempt fails.
	MIME string

	// Elements holds every metadata element discovered for this file, in
	// reverse-discovery order (see Emit).
	Elements []Element
}

// NewFileRecord returns a FileRecord for path with no type or elements set.
func NewFileRecord(path string, info os.FileInfo) *FileRecord {
	return &FileRecord{Path: path, Info: info}
}

// Emit prepends elem onto the file's metadata list, so the most recently
// discovered element is always at index 0. Callers asserting membership in
// tests must not rely on discovery order.
func (f *FileRecord) Emit(elem Element) {
	f.Elements = append([]Element{elem}, f.Elements...)
}

// MarkFailed sets the file's MIME to the default placeholder if no MIME is
// set yet; Type is left as it is. Used by the probe dispatcher when every
// magic matcher declines or the winning decoder fails outright.
func (f *FileRecord) MarkFailed() {
	if f.MIME == "" {
		f.MIME = defaultMIME
	}
}

// ElementType names a recognized metadata field. The element-type and
// data-type of an Element are independent axes; the pairing used by each
// decoder is prescribed in the format's decode logic, not enforced by the
// type system.
type ElementType int

// Recognized element types.
const (
	ElemTitle ElementType = iota
	ElemCreator
	ElemSubject
	ElemDescription
	ElemArtist
	ElemPerformer
	ElemAlbum
	ElemGenre
	ElemTrackNo
	ElemDate
	ElemISRC
	ElemDuration
	ElemSamplingRate
	ElemNumChannels
	ElemBitsPerSample
	ElemFrameWidth
	ElemFrameHeight
	ElemExposureTime
	ElemFNumber
	ElemISOSpeed
	ElemFocalLength
	ElemFocalLength35
	ElemOther
)

func (e ElementType) String() string {
	names := [...]string{
		"title", "creator", "subject", "description", "artist", "performer",
		"album", "genre", "trackno", "date", "isrc", "duration",
		"sampling_rate", "num_channels", "bits_per_sample", "frame_width",
		"frame_height", "exposure_time", "fnumber", "iso_speed",
		"focal_length", "focal_length35", "other",
	}
	if int(e) < 0 || int(e) >= len(names) {
		return "unknown"
	}
	return names[e]
}

// DataType tags which field of a Value is meaningful.
type DataType int

// Recognized value shapes.
const (
	DataInt DataType = iota
	DataFrac
	DataRational
	DataTimestamp
	DataText
)

// Value is a tagged union over an element's payload. Exactly one field
// matching Kind is meaningful.
type Value struct {
	Kind DataType

	Int  int64
	Frac float64
	Num  int32 // Rational numerator, already reduced by gcd(Num, Den).
	Den  int32 // Rational denominator, already reduced by gcd(Num, Den).
	Time time.Time
	Text string
}

// IntValue builds an integer Value.
func IntValue(n int64) Value { return Value{Kind: DataInt, Int: n} }

// FracValue builds a floating-point Value.
func FracValue(f float64) Value { return Value{Kind: DataFrac, Frac: f} }

// TextValue builds a text Value. Elements of element-type Other store their
// literal "key=value" form here.
func TextValue(s string) Value { return Value{Kind: DataText, Text: s} }

// TimestampValue builds a timestamp Value.
func TimestampValue(t time.Time) Value { return Value{Kind: DataTimestamp, Time: t} }

// RationalValue reduces num/den by their GCD and returns the reduced
// rational Value. Per the insertion invariant, every rational element
// emitted by a decoder has already passed through this constructor.
func RationalValue(num, den int32) Value {
	n, d := reduceRational(num, den)
	return Value{Kind: DataRational, Num: n, Den: d}
}

// reduceRational divides num and den by gcd(|num|,|den|), preserving the
// sign on the numerator and leaving den == 0 untouched (callers treat a
// zero denominator as a format error before it reaches here).
func reduceRational(num, den int32) (int32, int32) {
	if den == 0 {
		return num, den
	}
	g := gcd32(abs32(num), abs32(den))
	if g == 0 {
		return num, den
	}
	if den < 0 {
		num, den = -num, -den
	}
	return num / g, den / g
}

func gcd32(a, b int32) int32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

// String renders a Value for logging and golden-test comparisons; it is not
// a wire format.
func (v Value) String() string {
	switch v.Kind {
	case DataInt:
		return fmt.Sprintf("%d", v.Int)
	case DataFrac:
		return fmt.Sprintf("%g", v.Frac)
	case DataRational:
		return fmt.Sprintf("%d/%d", v.Num, v.Den)
	case DataTimestamp:
		return v.Time.Format(time.RFC3339)
	case DataText:
		return v.Text
	default:
		return "<invalid value>"
	}
}

// Element is one recognized metadata field attached to a FileRecord.
type Element struct {
	Type  ElementType
	Value Value
}

// NewElement pairs an element type with its value.
func NewElement(t ElementType, v Value) Element {
	return Element{Type: t, Value: v}
}

// LogLevel classifies a log entry produced while probing a file. It mirrors
// the four error kinds in the calling convention shared across decoders,
// the stream package, and the walker.
type LogLevel int

// Recognized log levels.
const (
	// LevelTrace is informational progress, off by default.
	LevelTrace LogLevel = iota
	// LevelFormat reports a malformed container field; never fatal, the
	// decoder continues past the offending frame.
	LevelFormat
	// LevelOSError reports an underlying I/O or allocation failure; may
	// fail the enclosing decode call but never the scan as a whole.
	LevelOSError
	// LevelUseError reports a caller precondition violation; fatal to
	// the scan.
	LevelUseError
)

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelFormat:
		return "format"
	case LevelOSError:
		return "os-error"
	case LevelUseError:
		return "use-error"
	default:
		return "unknown"
	}
}

// LogFunc is the shape of a caller-supplied logger hook. path identifies the
// file being probed when the log entry is file-scoped, empty otherwise. The
// job itself is bound by the caller via closure, not passed here, so this
// package never depends on the job's owning package.
type LogFunc func(path string, level LogLevel, format string, args ...any)
