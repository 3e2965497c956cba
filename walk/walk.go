// Package walk enumerates a directory hierarchy in pre-order, the external
// collaborator that feeds the probing engine its list of files. It depends
// only on stream (to hand back an opener for each entry, archive members
// included); it never imports meta, frame, probe, or the root package.
package walk

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/stream"
)

// EntryKind classifies a walked path before any format probing happens.
type EntryKind int

// Recognized entry kinds.
const (
	KindFile EntryKind = iota
	KindDirectory
	KindArchiveMember
)

// Entry is one path produced by Walk, in pre-order (a directory
// immediately followed by its own subtree, each level in readdir order).
// Archive members are interleaved immediately after the archive file they
// came from, in tar-stream order.
type Entry struct {
	Path string
	Kind EntryKind
	Info os.FileInfo

	// Open returns a stream over this entry's content. nil for
	// directories. Archive members return a stream.CachedStream over a
	// forward-only stream.ArchiveStream; regular files return a
	// stream.FileStream opened fresh on each call.
	Open func() (stream.Stream, error)
}

// Options controls how Walk descends a root.
type Options struct {
	// Recursive descends into subdirectories; without it only the root's
	// immediate children are visited.
	Recursive bool
	// ExcludeGlobs skips any path matching one of these doublestar
	// patterns (matched against the path relative to the walk root),
	// carried forward from the original command line's "-x pattern"
	// exclude flag.
	ExcludeGlobs []string
	// Archives, when set, descends into .tar/.tar.gz/.tgz files found
	// during the walk and emits their members as KindArchiveMember
	// entries immediately after the archive file itself.
	Archives bool
	// Telemetry, when non-nil, is attached to every stream.FileStream
	// and to the stream.CachedStream wrapping each archive member this
	// walk opens.
	Telemetry stream.JobTelemetry
}

// VisitFunc is called for every entry Walk produces. Returning an error
// stops the walk and the error propagates to Walk's caller; Walk itself
// never skips a sibling because of a visitor error (that policy lives in
// the caller, which may choose to log and continue).
type VisitFunc func(Entry) error

// Walk enumerates root and, per opts, its subtree, calling visit for every
// directory and regular file in pre-order. Symlinks are reported as
// whatever os.Lstat says they are; Walk does not follow them.
func Walk(root string, opts Options, visit VisitFunc) error {
	info, err := os.Lstat(root)
	if err != nil {
		return errors.Wrapf(err, "walk: stat root %q", root)
	}
	return walkOne(root, root, info, opts, visit)
}

func walkOne(walkRoot, path string, info os.FileInfo, opts Options, visit VisitFunc) error {
	if excluded(walkRoot, path, opts.ExcludeGlobs) {
		return nil
	}

	if !info.IsDir() {
		path := path
		if err := visit(Entry{
			Path: path,
			Kind: KindFile,
			Info: info,
			Open: func() (stream.Stream, error) { return stream.OpenFileStream(path, opts.Telemetry) },
		}); err != nil {
			return err
		}
		if opts.Archives && isArchivePath(path) {
			return walkArchive(path, opts.Telemetry, visit)
		}
		return nil
	}

	if err := visit(Entry{Path: path, Kind: KindDirectory, Info: info}); err != nil {
		return err
	}
	if !opts.Recursive && path != walkRoot {
		return nil
	}

	children, err := readdirSorted(path)
	if err != nil {
		return errors.Wrapf(err, "walk: read dir %q", path)
	}
	for _, name := range children {
		childPath := filepath.Join(path, name)
		childInfo, err := os.Lstat(childPath)
		if err != nil {
			return errors.Wrapf(err, "walk: stat %q", childPath)
		}
		if err := walkOne(walkRoot, childPath, childInfo, opts, visit); err != nil {
			return err
		}
	}
	return nil
}

// readdirSorted returns directory entry names in the order os.ReadDir
// already guarantees (lexical), preserved here as an explicit dependency
// rather than an incidental one.
func readdirSorted(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}

// isArchivePath reports whether path's extension marks it as a tar
// archive this walker knows how to descend into.
func isArchivePath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tar") || strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// walkArchive opens path as a tar (optionally gzip-compressed) archive and
// emits one KindArchiveMember entry per regular-file tar header, in
// tar-stream order, with Path set to "path!member" so archive members
// never collide with on-disk paths.
//
// visit must call Open and finish reading the member before returning,
// since the archive reader only moves forward: once the next tar.Next call
// advances past a member, its Open can no longer be realized correctly.
func walkArchive(path string, telemetry stream.JobTelemetry, visit VisitFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "walk: open archive %q", path)
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "walk: open gzip archive %q", path)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "walk: read tar %q", path)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		memberPath := path + "!" + hdr.Name
		size := hdr.Size
		reader := tr
		if err := visit(Entry{
			Path: memberPath,
			Kind: KindArchiveMember,
			Open: func() (stream.Stream, error) {
				// Decoders that need random access (BMFF, TIFF) can't seek
				// the underlying tar reader backward, so every archive
				// member is handed out already wrapped in a page cache.
				return stream.NewCachedStream(stream.NewArchiveStream(reader, size), telemetry), nil
			},
		}); err != nil {
			return err
		}
	}
}

// excluded reports whether path matches one of globs, evaluated against
// path relative to walkRoot.
func excluded(walkRoot, path string, globs []string) bool {
	if len(globs) == 0 {
		return false
	}
	rel, err := filepath.Rel(walkRoot, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
