package probe

import (
	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/frame"
	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// The iTunes "©xxx" tags use raw byte 0xA9 as their first byte, not the
// UTF-8 encoding of the U+00A9 copyright sign (0xC2 0xA9) a Go string
// literal containing "©" would produce.
var (
	bmffTagNam = frame.BMFFBoxType([]byte{0xA9, 'n', 'a', 'm'})
	bmffTagAlb = frame.BMFFBoxType([]byte{0xA9, 'a', 'l', 'b'})
	bmffTagArt = frame.BMFFBoxType([]byte{0xA9, 'A', 'R', 'T'})
	bmffTagToo = frame.BMFFBoxType([]byte{0xA9, 't', 'o', 'o'})
	bmffTagCmt = frame.BMFFBoxType([]byte{0xA9, 'c', 'm', 't'})
)

// bmffIlstTags maps an ilst child box's 4-character tag to the element
// type it fills. trkn is handled separately since it decodes to an
// integer, not text.
var bmffIlstTags = map[frame.BMFFBoxType]meta.ElementType{
	bmffTagNam: meta.ElemTitle,
	bmffTagAlb: meta.ElemAlbum,
	"aART":     meta.ElemArtist,
	bmffTagArt: meta.ElemPerformer,
	bmffTagToo: meta.ElemCreator,
	bmffTagCmt: meta.ElemDescription,
	"desc":     meta.ElemDescription,
}

// decodeBMFF descends the box tree by a static parent->child map rooted at
// the container: root -> ftyp, root -> moov; moov -> mvhd, moov -> udta;
// udta -> meta; meta -> ilst. Other boxes, including an hdlr inside meta,
// are skipped.
func decodeBMFF(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	root := frame.NewBMFFBoxIterator(s, 0, s.Size())
	sawFtyp := false
	for {
		res, err := root.Next()
		if err != nil || res == frame.ResultMalformed {
			break
		}
		if res == frame.ResultEnd {
			break
		}
		switch root.CurrentType().(frame.BMFFBoxType) {
		case "ftyp":
			payload, err := root.Read()
			if err != nil || len(payload) < 4 {
				continue
			}
			majorBrand := string(payload[0:4])
			rec.Type, rec.MIME = bmffTypeForBrand(majorBrand)
			sawFtyp = true
		case "moov":
			decodeMoov(s, root.CurrentPayloadOffset(), root.CurrentDataLen(), rec, log)
		}
	}
	if !sawFtyp {
		return errors.New("bmff: no ftyp box found")
	}
	return nil
}

func bmffTypeForBrand(brand string) (meta.FileType, string) {
	switch brand {
	case "M4V ", "mp41", "mp42":
		return meta.TypeVideo, "video/mp4"
	case "M4A ":
		return meta.TypeAudio, "audio/mp4"
	default:
		return meta.TypeMedia, "video/mp4"
	}
}

func decodeMoov(s stream.Stream, start, size int64, rec *meta.FileRecord, log meta.LogFunc) {
	it := frame.NewBMFFBoxIterator(s, start, start+size)
	for {
		res, err := it.Next()
		if err != nil || res != frame.ResultOK {
			return
		}
		switch it.CurrentType().(frame.BMFFBoxType) {
		case "mvhd":
			payload, err := it.Read()
			if err != nil {
				continue
			}
			decodeMvhd(payload, rec, log)
		case "udta":
			decodeUdta(s, it.CurrentPayloadOffset(), it.CurrentDataLen(), rec, log)
		}
	}
}

// decodeMvhd parses an mvhd box: version 0 uses 32-bit time/duration
// fields, version 1 uses 64-bit. Fields after the 4-byte full-box header:
// creation/modification time, timescale, duration.
func decodeMvhd(payload []byte, rec *meta.FileRecord, log meta.LogFunc) {
	if len(payload) < 1 {
		return
	}
	version := payload[0]
	var timescale, duration uint64
	switch version {
	case 0:
		if len(payload) < 4+16 {
			return
		}
		timescale = uint64(be32(payload[12:16]))
		duration = uint64(be32(payload[16:20]))
	case 1:
		if len(payload) < 4+28 {
			return
		}
		timescale = uint64(be32(payload[20:24]))
		duration = uint64(be32(payload[24:28]))<<32 | uint64(be32(payload[28:32]))
	default:
		if log != nil {
			log(rec.Path, meta.LevelFormat, "bmff: mvhd: unsupported full-box version %d", version)
		}
		return
	}
	if timescale > 0 {
		rec.Emit(meta.NewElement(meta.ElemDuration, meta.FracValue(float64(duration)/float64(timescale))))
	}
}

func decodeUdta(s stream.Stream, start, size int64, rec *meta.FileRecord, log meta.LogFunc) {
	it := frame.NewBMFFBoxIterator(s, start, start+size)
	for {
		res, err := it.Next()
		if err != nil || res != frame.ResultOK {
			return
		}
		if it.CurrentType().(frame.BMFFBoxType) == "meta" {
			decodeMetaBox(s, it.CurrentPayloadOffset(), it.CurrentDataLen(), rec, log)
		}
	}
}

// decodeMetaBox parses a full-box (version+flags byte; only 0,0
// supported) followed by a list of child boxes, looking for ilst.
func decodeMetaBox(s stream.Stream, start, size int64, rec *meta.FileRecord, log meta.LogFunc) {
	hdr, err := s.Get(start, 4)
	if err != nil {
		return
	}
	if hdr[0] != 0 || hdr[1] != 0 || hdr[2] != 0 || hdr[3] != 0 {
		if log != nil {
			log(rec.Path, meta.LevelFormat, "bmff: meta: unsupported full-box version/flags")
		}
		return
	}
	it := frame.NewBMFFBoxIterator(s, start+4, start+size)
	for {
		res, err := it.Next()
		if err != nil || res != frame.ResultOK {
			return
		}
		if it.CurrentType().(frame.BMFFBoxType) == "ilst" {
			decodeIlst(s, it.CurrentPayloadOffset(), it.CurrentDataLen(), rec, log)
		}
	}
}

func decodeIlst(s stream.Stream, start, size int64, rec *meta.FileRecord, log meta.LogFunc) {
	it := frame.NewBMFFBoxIterator(s, start, start+size)
	for {
		res, err := it.Next()
		if err != nil || res != frame.ResultOK {
			return
		}
		tag := it.CurrentType().(frame.BMFFBoxType)
		decodeIlstEntry(s, tag, it.CurrentPayloadOffset(), it.CurrentDataLen(), rec, log)
	}
}

// decodeIlstEntry looks for the entry's "data" child box, whose first 8
// bytes are {typeid(32), locale(32)} followed by the value.
func decodeIlstEntry(s stream.Stream, tag frame.BMFFBoxType, start, size int64, rec *meta.FileRecord, log meta.LogFunc) {
	it := frame.NewBMFFBoxIterator(s, start, start+size)
	for {
		res, err := it.Next()
		if err != nil || res != frame.ResultOK {
			return
		}
		if it.CurrentType().(frame.BMFFBoxType) != "data" {
			continue
		}
		payload, err := it.Read()
		if err != nil || len(payload) < 8 {
			return
		}
		value := payload[8:]

		if tag == "trkn" {
			if len(value) >= 4 {
				n := int64(value[2])<<8 | int64(value[3])
				rec.Emit(meta.NewElement(meta.ElemTrackNo, meta.IntValue(n)))
			}
			return
		}
		if elemType, ok := bmffIlstTags[tag]; ok {
			rec.Emit(meta.NewElement(elemType, meta.TextValue(string(value))))
		}
		return
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
