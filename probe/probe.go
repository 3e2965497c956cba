// Package probe recognizes a file's container format from its leading
// bytes and decodes the format-intrinsic fields each supports into a
// meta.FileRecord's element list.
package probe

import (
	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/stream"
)

// minProbeSize is the shortest file this package will attempt to
// recognize; anything smaller is left untyped.
const minProbeSize = 256

// decodeFunc is the shape every format decoder implements: read from s,
// emit elements onto rec, report format/os-error conditions through log.
// Additive on failure — already-emitted elements are never rolled back.
type decodeFunc func(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error

// matcher pairs a magic-byte test with the decoder it dispatches to.
type matcher struct {
	name   string
	match  func(head []byte) bool
	decode decodeFunc
}

var matchers = []matcher{
	{name: "flac", match: matchFLAC, decode: decodeFLAC},
	{name: "id3v2", match: matchID3v2, decode: decodeID3v2},
	{name: "bmff", match: matchBMFF, decode: decodeBMFF},
	{name: "tiff", match: matchTIFF, decode: decodeTIFF},
	{name: "jpeg", match: matchJPEG, decode: decodeJPEG},
}

func matchFLAC(head []byte) bool {
	return len(head) >= 4 && string(head[0:4]) == "fLaC"
}

func matchID3v2(head []byte) bool {
	if len(head) < 10 || string(head[0:3]) != "ID3" {
		return false
	}
	if head[3] >= 0xFF || head[4] >= 0xFF {
		return false
	}
	for _, b := range head[6:10] {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

func matchBMFF(head []byte) bool {
	return len(head) >= 8 && string(head[4:8]) == "ftyp"
}

func matchTIFF(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	if head[0] == 'M' && head[1] == 'M' && head[2] == 0 && head[3] == 0x2A {
		return true
	}
	if head[0] == 'I' && head[1] == 'I' && head[2] == 0x2A && head[3] == 0 {
		return true
	}
	return false
}

func matchJPEG(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1] == 0xD8
}

// Dispatch probes s, the open stream for rec, against each recognized
// magic in order, running the first matching decoder to completion. Files
// shorter than 256 bytes are left untyped. A decoder that returns an error
// leaves rec untyped (MarkFailed) but rec is still returned to the caller's
// output.
func Dispatch(s stream.Stream, rec *meta.FileRecord, log meta.LogFunc) error {
	if s.Size() < minProbeSize {
		rec.MarkFailed()
		return nil
	}
	headLen := minProbeSize
	if s.Size() < int64(headLen) {
		headLen = int(s.Size())
	}
	head, err := s.Get(0, headLen)
	if err != nil {
		rec.MarkFailed()
		return errors.Wrap(err, "probe: read header")
	}
	// head is a borrowed view; copy it since decoders issue further Get
	// calls on s before we're done inspecting it.
	headCopy := append([]byte(nil), head...)

	for _, m := range matchers {
		if !m.match(headCopy) {
			continue
		}
		if err := m.decode(s, rec, log); err != nil {
			if log != nil {
				log(rec.Path, meta.LevelFormat, "probe: %s decoder failed: %v", m.name, err)
			}
			rec.MarkFailed()
			return nil
		}
		return nil
	}
	rec.MarkFailed()
	return nil
}
