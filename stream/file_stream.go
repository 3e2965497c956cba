package stream

import (
	"io"
	"os"
)

// FileStream reads a single open file through a one-page internal buffer,
// charging every page read against the owning job's physical-read
// counters. Its buffering strategy follows the same read-ahead-into-a-
// reused-buffer shape as a typical buffered io.ReadSeeker: track the
// absolute range currently held and only re-fill on a miss.
type FileStream struct {
	f    *os.File
	path string
	size int64

	buf      []byte
	bufStart int64
	bufLen   int

	tel JobTelemetry
}

// OpenFileStream opens path and returns a FileStream over it. tel may be
// nil.
func OpenFileStream(path string, tel JobTelemetry) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindIO, Op: "open", Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &Error{Kind: KindIO, Op: "stat", Path: path, Err: err}
	}
	return &FileStream{
		f:    f,
		path: path,
		size: info.Size(),
		buf:  make([]byte, DefaultPageSize),
		tel:  telemetryOrNoop(tel),
	}, nil
}

// Size returns the file's length in bytes, as of when the stream was
// opened.
func (s *FileStream) Size() int64 { return s.size }

// Get returns a view of length bytes starting at offs, refilling its page
// buffer from the underlying file descriptor on a miss.
func (s *FileStream) Get(offs int64, length int) ([]byte, error) {
	offs = resolveOffset(offs, s.size)
	if offs < 0 || length < 0 || offs+int64(length) > s.size {
		return nil, &Error{Kind: KindRange, Op: "get", Path: s.path}
	}
	if length == 0 {
		return s.buf[:0], nil
	}

	if length > len(s.buf) {
		// Wider than one page: bypass buffering, read directly.
		out := make([]byte, length)
		n, err := s.f.ReadAt(out, offs)
		if err != nil && err != io.EOF {
			return nil, &Error{Kind: KindIO, Op: "get", Path: s.path, Err: err}
		}
		s.tel.CountPhysicalRead(n)
		s.tel.CountLogicalRead(n)
		return out[:n], nil
	}

	if s.bufLen > 0 && offs >= s.bufStart && offs+int64(length) <= s.bufStart+int64(s.bufLen) {
		start := offs - s.bufStart
		s.tel.CountLogicalRead(length)
		return s.buf[start : start+int64(length)], nil
	}

	pageStart := offs - offs%int64(len(s.buf))
	if offs+int64(length) > pageStart+int64(len(s.buf)) {
		// The range straddles a page boundary: start the page at offs.
		pageStart = offs
	}
	want := int64(len(s.buf))
	if pageStart+want > s.size {
		want = s.size - pageStart
	}
	n, err := s.f.ReadAt(s.buf[:want], pageStart)
	if err != nil && err != io.EOF {
		return nil, &Error{Kind: KindIO, Op: "get", Path: s.path, Err: err}
	}
	s.bufStart = pageStart
	s.bufLen = n
	s.tel.CountPhysicalRead(n)

	if offs < s.bufStart || offs+int64(length) > s.bufStart+int64(s.bufLen) {
		return nil, &Error{Kind: KindRange, Op: "get", Path: s.path}
	}
	start := offs - s.bufStart
	s.tel.CountLogicalRead(length)
	return s.buf[start : start+int64(length)], nil
}

// Close releases the underlying file descriptor.
func (s *FileStream) Close() error {
	if err := s.f.Close(); err != nil {
		return &Error{Kind: KindIO, Op: "close", Path: s.path, Err: err}
	}
	return nil
}
