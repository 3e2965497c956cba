package probe

import (
	"bytes"
	"strconv"

	"github.com/mewkiz/pkg/readerutil"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/fmdscan/fmd/frame"
	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// id3UCS2Decoder decodes the UCS-2-with-BOM encoding ID3v2 text frames use
// when their leading encoding byte is 1.
var id3UCS2Decoder = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)

// id3FieldMap maps a recognized ID3v2 frame id to the element type it
// fills; TRCK is handled separately since its value parses as an integer.
var id3FieldMap = map[frame.ID3v2FrameID]meta.ElementType{
	"TIT2": meta.ElemTitle,
	"TALB": meta.ElemAlbum,
	"TOPE": meta.ElemArtist,
	"TPE1": meta.ElemPerformer,
	"TENC": meta.ElemCreator,
	"TDAT": meta.ElemDate,
	"TYER": meta.ElemDate,
	"TSRC": meta.ElemISRC,
}

// decodeID3v2 walks the tag's frames and emits an element for each
// recognized frame id.
func decodeID3v2(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	it, err := NewID3v2FrameIteratorChecked(s)
	if err != nil {
		return err
	}

	for {
		res, err := it.Next()
		if err != nil || res == frame.ResultMalformed {
			break
		}
		if res == frame.ResultEnd {
			break
		}
		id := it.CurrentType().(frame.ID3v2FrameID)

		if id == "TRCK" {
			payload, err := it.Read()
			if err != nil {
				continue
			}
			text, ok := decodeID3Text(payload)
			if !ok {
				continue
			}
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				rec.Emit(meta.NewElement(meta.ElemTrackNo, meta.IntValue(n)))
			}
			continue
		}

		elemType, recognized := id3FieldMap[id]
		if !recognized {
			continue
		}
		payload, err := it.Read()
		if err != nil {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "id3v2: read frame %s: %v", id, err)
			}
			continue
		}
		text, ok := decodeID3Text(payload)
		if !ok {
			continue
		}
		rec.Emit(meta.NewElement(elemType, meta.TextValue(text)))
	}

	rec.Type = meta.TypeAudio
	rec.MIME = "audio/mpeg"
	return nil
}

// NewID3v2FrameIteratorChecked wraps frame.NewID3v2FrameIterator, translating
// its error into the local decode-failure convention (format errors stop
// this decoder but never the scan).
func NewID3v2FrameIteratorChecked(s stream.Stream) (*frame.ID3v2FrameIterator, error) {
	it, err := frame.NewID3v2FrameIterator(s)
	if err != nil {
		return nil, errors.Wrap(err, "id3v2")
	}
	return it, nil
}

// decodeID3Text decodes a text frame's payload: the leading encoding byte
// selects ISO-8859-1 (0, text follows verbatim) or UCS-2 with a leading
// BOM (1, decoded via golang.org/x/text). Any other encoding byte is
// ignored per spec.
func decodeID3Text(payload []byte) (string, bool) {
	r := bytes.NewReader(payload)
	encByte, err := readerutil.ReadByte(r)
	if err != nil {
		return "", false
	}
	rest := payload[len(payload)-r.Len():]
	switch encByte {
	case 0:
		return string(rest), true
	case 1:
		out, _, err := transform.Bytes(id3UCS2Decoder.NewDecoder(), rest)
		if err != nil {
			return "", false
		}
		return string(out), true
	default:
		return "", false
	}
}
