// Package fmd scans a filesystem tree, probing each file's container
// format and collecting whatever metadata it recognizes.
//
// A Job describes one scan: its roots, its flags, and the hooks a caller
// wants invoked as the scan progresses. Scan drains a Job synchronously;
// callers wanting parallelism run multiple Jobs, one goroutine each, since
// two Jobs never share state.
package fmd

import (
	"github.com/fmdscan/fmd/meta"
)

// Flags selects which behaviors a Job performs during a scan.
type Flags uint32

// Recognized flags.
const (
	// FlagRecursive descends into subdirectories. Without it, a root
	// directory's immediate children are listed but not entered.
	FlagRecursive Flags = 1 << iota
	// FlagMetadata probes each regular file's container format and
	// extracts metadata elements. Without it, files are listed with
	// their type and MIME left unset.
	FlagMetadata
	// FlagArchives descends into .tar/.tar.gz/.tgz files, scanning their
	// members as though they were regular files at the archive's
	// location.
	FlagArchives
)

// Job describes one scan and accumulates its output.
type Job struct {
	// Roots are the paths to scan, processed in order.
	Roots []string
	// Flags controls walk and probe behavior, see the Flag constants.
	Flags Flags
	// ExcludeGlobs skips any path (relative to its root) matching one of
	// these doublestar patterns.
	ExcludeGlobs []string

	// Logger receives every log-worthy event produced while the job
	// runs, file-scoped ones with path set, job-scoped ones with path
	// empty. May be nil, in which case log entries are discarded.
	Logger func(job *Job, path string, level meta.LogLevel, format string, args ...any)
	// Begin, if set, is called once per walked entry before any probing
	// of it is attempted. A non-zero return skips probing that path (the
	// entry is still emitted, just left untyped) — it does not skip the
	// entry's Finish call.
	Begin func(job *Job, path string) int
	// Finish, if set, is called once per walked entry after it has been
	// built (and probed, unless Begin skipped that). A non-zero return
	// drops file from the output chain entirely.
	Finish func(job *Job, file *meta.FileRecord) int

	// Records accumulates one FileRecord per walked entry, in discovery
	// order, across every root. Free clears it.
	Records []*meta.FileRecord

	physicalReads int64
	logicalReads  int64
	cacheHits     int64
	cacheMisses   int64
}

// CountPhysicalRead satisfies stream.JobTelemetry.
func (j *Job) CountPhysicalRead(n int) { j.physicalReads += int64(n) }

// CountLogicalRead satisfies stream.JobTelemetry.
func (j *Job) CountLogicalRead(n int) { j.logicalReads += int64(n) }

// CountCacheHit satisfies stream.JobTelemetry.
func (j *Job) CountCacheHit() { j.cacheHits++ }

// CountCacheMiss satisfies stream.JobTelemetry.
func (j *Job) CountCacheMiss() { j.cacheMisses++ }

// PhysicalReads returns the number of bytes the job's file streams actually
// fetched from their file descriptor, as opposed to bytes served from a
// page already buffered. Bytes read from an archive reader are not counted.
func (j *Job) PhysicalReads() int64 { return j.physicalReads }

// LogicalReads returns the number of bytes returned by Get across every
// stream the job opened, regardless of whether each byte required a
// physical read.
func (j *Job) LogicalReads() int64 { return j.logicalReads }

// CacheHits returns how many CachedStream.Get calls were served entirely
// from an already-buffered page.
func (j *Job) CacheHits() int64 { return j.cacheHits }

// CacheMisses returns how many CachedStream.Get calls required evicting
// and refilling a page.
func (j *Job) CacheMisses() int64 { return j.cacheMisses }

// log dispatches to Logger if set, a no-op otherwise.
func (j *Job) log(path string, level meta.LogLevel, format string, args ...any) {
	if j.Logger != nil {
		j.Logger(j, path, level, format, args...)
	}
}

// logFunc closes over j so probe decoders, which never import this
// package, can still report through Job.Logger.
func (j *Job) logFunc() meta.LogFunc {
	return func(path string, level meta.LogLevel, format string, args ...any) {
		j.log(path, level, format, args...)
	}
}

// Free releases a job's accumulated records, so a caller can reuse a Job
// value for a second Scan without its output chain growing unbounded.
func Free(job *Job) {
	job.Records = nil
}
