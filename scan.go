package fmd

import (
	"github.com/pkg/errors"

	"github.com/fmdscan/fmd/meta"
	"github.com/fmdscan/fmd/probe"
	"github.com/fmdscan/fmd/walk"
)

// Scan walks every root in job.Roots per job.Flags, probing regular files
// when FlagMetadata is set, and appends one FileRecord per visited entry
// to job.Records. A malformed file never fails the scan: its decoder
// error is logged at LevelFormat or LevelOSError and the file's record is
// marked failed. Scan itself fails only on a caller precondition
// violation (no roots given) or an unrecoverable walker error (a root
// that cannot be stat'd, a directory that cannot be read).
func Scan(job *Job) error {
	if len(job.Roots) == 0 {
		err := errors.New("fmd: Scan: job has no roots")
		job.log("", meta.LevelUseError, "%v", err)
		return err
	}

	logFn := job.logFunc()
	opts := walk.Options{
		Recursive:    job.Flags&FlagRecursive != 0,
		ExcludeGlobs: job.ExcludeGlobs,
		Archives:     job.Flags&FlagArchives != 0,
		Telemetry:    job,
	}

	for _, root := range job.Roots {
		err := walk.Walk(root, opts, func(e walk.Entry) error {
			return job.visit(e, logFn)
		})
		if err != nil {
			return errors.Wrapf(err, "fmd: scan %q", root)
		}
	}
	return nil
}

// visit turns one walked entry into a FileRecord, probing it when the job
// asks for metadata. It never returns an error for a probing failure;
// only a stream-open failure is surfaced, and even that is reported via
// LevelOSError rather than aborting the walk, matching the "os-error
// never escalates past the decode call" rule for regular files while
// still letting the caller see something went wrong in the log.
//
// Begin and Finish are per-entity hooks, consulted for every entry
// regardless of kind: a non-zero Begin return skips probing this path (the
// entry is still built and still offered to Finish); a non-zero Finish
// return drops the finished record from j.Records entirely.
func (j *Job) visit(e walk.Entry, logFn meta.LogFunc) error {
	skipProbe := j.begin(e.Path)

	switch e.Kind {
	case walk.KindDirectory:
		rec := meta.NewFileRecord(e.Path, e.Info)
		rec.Type = meta.TypeDirectory
		j.finish(rec)
		return nil

	case walk.KindFile, walk.KindArchiveMember:
		rec := meta.NewFileRecord(e.Path, e.Info)
		if e.Kind == walk.KindArchiveMember {
			rec.Type = meta.TypeArchive
		}
		if skipProbe || j.Flags&FlagMetadata == 0 {
			j.finish(rec)
			return nil
		}

		s, err := e.Open()
		if err != nil {
			logFn(e.Path, meta.LevelOSError, "open: %v", err)
			rec.MarkFailed()
			j.finish(rec)
			return nil
		}
		defer s.Close()

		if err := probe.Dispatch(s, rec, logFn); err != nil {
			logFn(e.Path, meta.LevelFormat, "probe: %v", err)
			rec.MarkFailed()
		}
		j.finish(rec)
		return nil

	default:
		return nil
	}
}

// begin consults Job.Begin for path, defaulting to "don't skip" when no
// hook is set.
func (j *Job) begin(path string) bool {
	if j.Begin == nil {
		return false
	}
	return j.Begin(j, path) != 0
}

// finish consults Job.Finish for rec and appends it to j.Records unless
// the hook asks for it to be dropped.
func (j *Job) finish(rec *meta.FileRecord) {
	if j.Finish != nil && j.Finish(j, rec) != 0 {
		return
	}
	j.Records = append(j.Records, rec)
}
