package stream

// DefaultPageCount is the number of pages a CachedStream holds by default,
// each DefaultPageSize bytes, for a default working set of 128 KiB.
const DefaultPageCount = 4

// cachePage is one fully-associative slot in a CachedStream.
type cachePage struct {
	data       []byte
	start      int64
	length     int
	valid      bool
	generation uint64
}

// contains reports whether the page holds the full range [offs, offs+n).
func (p *cachePage) contains(offs int64, n int) bool {
	return p.valid && offs >= p.start && offs+int64(n) <= p.start+int64(p.length)
}

// CachedStream is a fixed-size, fully-associative page cache over another
// Stream. It owns the stream it wraps: Close closes the underlying stream
// too. Random-access decoders (TIFF, BMFF) call Get repeatedly at scattered
// offsets; the cache turns those into a small number of physical reads on
// the wrapped stream.
type CachedStream struct {
	under    Stream
	pageSize int
	pages    []cachePage
	mostHit  int
	gen      uint64

	hits   int64
	misses int64

	tel JobTelemetry
}

// NewCachedStream wraps under in a CachedStream with DefaultPageCount pages
// of DefaultPageSize bytes each. tel may be nil.
func NewCachedStream(under Stream, tel JobTelemetry) *CachedStream {
	return NewCachedStreamSize(under, DefaultPageCount, DefaultPageSize, tel)
}

// NewCachedStreamSize wraps under in a CachedStream with the given page
// count and size.
func NewCachedStreamSize(under Stream, pageCount, pageSize int, tel JobTelemetry) *CachedStream {
	return &CachedStream{
		under:    under,
		pageSize: pageSize,
		pages:    make([]cachePage, pageCount),
		tel:      telemetryOrNoop(tel),
	}
}

// Size forwards to the underlying stream.
func (s *CachedStream) Size() int64 { return s.under.Size() }

// Hits returns the number of Get calls served entirely from a cached page.
func (s *CachedStream) Hits() int64 { return s.hits }

// Misses returns the number of Get calls that required a physical read.
func (s *CachedStream) Misses() int64 { return s.misses }

// Get returns a length-byte view starting at offs, scanning pages from the
// most-recently-hit page (circularly) for a hit, and otherwise evicting the
// first empty page or, failing that, the least-recently-used page.
func (s *CachedStream) Get(offs int64, length int) ([]byte, error) {
	offs = resolveOffset(offs, s.under.Size())
	if length > s.pageSize {
		return nil, &Error{Kind: KindNotSupported, Op: "get"}
	}

	n := len(s.pages)
	for i := 0; i < n; i++ {
		idx := (s.mostHit + i) % n
		p := &s.pages[idx]
		if p.contains(offs, length) {
			s.gen++
			p.generation = s.gen
			s.mostHit = idx
			s.hits++
			s.tel.CountLogicalRead(length)
			s.tel.CountCacheHit()
			start := offs - p.start
			return p.data[start : start+int64(length)], nil
		}
	}

	victim := -1
	for i := range s.pages {
		if !s.pages[i].valid {
			victim = i
			break
		}
	}
	if victim == -1 {
		victim = 0
		for i := range s.pages {
			if s.pages[i].generation < s.pages[victim].generation {
				victim = i
			}
		}
	}

	pageStart := offs - offs%int64(s.pageSize)
	if offs+int64(length) > pageStart+int64(s.pageSize) {
		// The range straddles a page boundary: start the page at offs.
		pageStart = offs
	}
	want := int64(s.pageSize)
	if pageStart+want > s.under.Size() {
		want = s.under.Size() - pageStart
	}
	view, err := s.under.Get(pageStart, int(want))
	if err != nil {
		return nil, err
	}

	p := &s.pages[victim]
	if cap(p.data) < len(view) {
		p.data = make([]byte, len(view))
	}
	p.data = p.data[:len(view)]
	copy(p.data, view)
	p.start = pageStart
	p.length = len(view)
	p.valid = true
	s.gen++
	p.generation = s.gen
	s.mostHit = victim

	s.misses++
	s.tel.CountLogicalRead(length)
	s.tel.CountCacheMiss()

	if !p.contains(offs, length) {
		return nil, &Error{Kind: KindRange, Op: "get"}
	}
	start := offs - p.start
	return p.data[start : start+int64(length)], nil
}

// Close closes the wrapped stream.
func (s *CachedStream) Close() error {
	return s.under.Close()
}
