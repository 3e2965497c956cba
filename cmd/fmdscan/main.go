// Command fmdscan walks one or more paths, probes every file it finds,
// and prints whatever metadata it recognized.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mewkiz/pkg/dbg"
	"github.com/mewkiz/pkg/osutil"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	fmd "github.com/fmdscan/fmd"
	"github.com/fmdscan/fmd/meta"
)

// Exit codes match the original tool's sysexits.h usage: EX_USAGE for bad
// arguments, EX_OSERR for a top-level scan failure.
const (
	exUsage = 64
	exOSErr = 71
)

func main() {
	cmd := &cli.Command{
		Name:      "fmdscan",
		Usage:     "Probe files for recognized metadata",
		ArgsUsage: "path...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "r", Usage: "recurse into subdirectories"},
			&cli.BoolFlag{Name: "a", Usage: "descend into tar archives"},
			&cli.BoolFlag{Name: "m", Usage: "print read/cache telemetry after each root"},
			&cli.StringSliceFlag{Name: "x", Usage: "exclude paths matching `PATTERN` (doublestar glob, relative to each root)"},
			&cli.BoolFlag{Name: "v", Usage: "enable trace-level logging"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		log.Printf("%+v", err)
		os.Exit(exOSErr)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	roots := cmd.Args().Slice()
	if len(roots) == 0 {
		if err := cli.ShowAppHelp(cmd); err != nil {
			return err
		}
		return cli.Exit("no paths given", exUsage)
	}

	dbg.Debug = cmd.Bool("v")

	for _, root := range roots {
		if !osutil.Exists(root) {
			return cli.Exit(fmt.Sprintf("no such path: %s", root), exUsage)
		}
	}

	var flags fmd.Flags
	if cmd.Bool("r") {
		flags |= fmd.FlagRecursive
	}
	if cmd.Bool("a") {
		flags |= fmd.FlagArchives
	}
	flags |= fmd.FlagMetadata
	excludes := cmd.StringSlice("x")
	showTelemetry := cmd.Bool("m")

	g, _ := errgroup.WithContext(ctx)
	jobs := make([]*fmd.Job, len(roots))
	for i, root := range roots {
		i, root := i, root
		job := &fmd.Job{
			Roots:        []string{root},
			Flags:        flags,
			ExcludeGlobs: excludes,
			Logger:       logToStderr,
		}
		jobs[i] = job
		g.Go(func() error {
			return fmd.Scan(job)
		})
	}

	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), exOSErr)
	}

	for _, job := range jobs {
		printJob(job)
		if showTelemetry {
			printTelemetry(job)
		}
	}
	return nil
}

func logToStderr(job *fmd.Job, path string, level meta.LogLevel, format string, args ...any) {
	if level == meta.LevelTrace {
		dbg.Println(path, fmt.Sprintf(format, args...))
		return
	}
	prefix := level.String()
	if path != "" {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", prefix, path, fmt.Sprintf(format, args...))
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, fmt.Sprintf(format, args...))
}

func printJob(job *fmd.Job) {
	for _, rec := range job.Records {
		fmt.Printf("%s\t%s\t%s\n", rec.Path, rec.Type, rec.MIME)
		for i := len(rec.Elements) - 1; i >= 0; i-- {
			el := rec.Elements[i]
			fmt.Printf("  %s: %s\n", el.Type, el.Value)
		}
	}
}

func printTelemetry(job *fmd.Job) {
	fmt.Printf("physical reads: %d\n", job.PhysicalReads())
	fmt.Printf("logical reads:  %d\n", job.LogicalReads())
	fmt.Printf("cache hits:     %d\n", job.CacheHits())
	fmt.Printf("cache misses:   %d\n", job.CacheMisses())
}
