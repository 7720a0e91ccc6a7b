package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/transcoder"
)

// Outcome classifies one finished job.
type Outcome int

const (
	Converted Outcome = iota
	SkippedExists
	Failed
)

// JobResult is produced per job and consumed only for aggregation. Failed
// jobs carry the sidecar path; they are never retried automatically.
type JobResult struct {
	Job     Job
	Outcome Outcome
	Sidecar string
	Err     error
}

// Summary is the final tri-count of a run.
type Summary struct {
	Converted int
	Skipped   int
	Failed    int
}

// Options controls a batch run.
type Options struct {
	Quality          int  // lossy quality (default 70 at the CLI)
	Lossless         bool // global override superseding per-format defaults
	MaxWidth         int
	MaxHeight        int
	Overwrite        bool // re-encode even when the destination exists
	StripMetadata    bool
	PNGOpaqueQuality int       // lossless effort hint for opaque PNG sources, 0 means 90
	DeleteOriginals  bool      // best-effort removal after the run
	Workers          int       // 0 means NumCPU
	ProgressEvery    int       // progress line cadence, 0 means 50
	Progress         io.Writer // nil means os.Stdout
}

// Run dispatches all jobs across a fixed worker pool. A failure in one job
// never aborts its siblings; it becomes a sidecar file and a Failed count.
func Run(ctx context.Context, jobs []Job, opts Options) Summary {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = 50
	}
	out := opts.Progress
	if out == nil {
		out = os.Stdout
	}

	jobCh := make(chan Job)
	results := make(chan JobResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				results <- runJob(job, opts)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var sum Summary
	done := 0
	for res := range results {
		done++
		switch res.Outcome {
		case Converted:
			sum.Converted++
		case SkippedExists:
			sum.Skipped++
		case Failed:
			sum.Failed++
		}
		if done%every == 0 || done == len(jobs) {
			fmt.Fprintf(out, "[%d/%d] done... (ok=%d, skip=%d, err=%d)\n",
				done, len(jobs), sum.Converted, sum.Skipped, sum.Failed)
		}
	}

	if opts.DeleteOriginals {
		deleteOriginals(jobs)
	}
	return sum
}

func runJob(job Job, opts Options) JobResult {
	if !opts.Overwrite {
		if _, err := os.Stat(job.Dst); err == nil {
			return JobResult{Job: job, Outcome: SkippedExists}
		}
	}

	err := transcoder.Transcode(job.Src, job.Dst, transcoder.Options{
		Quality:          opts.Quality,
		MaxWidth:         opts.MaxWidth,
		MaxHeight:        opts.MaxHeight,
		ForceLossless:    opts.Lossless,
		StripMetadata:    opts.StripMetadata,
		PNGOpaqueQuality: opts.PNGOpaqueQuality,
	})
	if err != nil {
		return JobResult{
			Job:     job,
			Outcome: Failed,
			Sidecar: writeSidecar(job, err),
			Err:     err,
		}
	}
	return JobResult{Job: job, Outcome: Converted}
}

// writeSidecar leaves a diagnostic file next to the failed source so large
// runs stay auditable without aborting. Returns the sidecar path; the write
// itself is best-effort.
func writeSidecar(job Job, cause error) string {
	path := strings.TrimSuffix(job.Src, filepath.Ext(job.Src)) + ".ERROR.txt"
	body := fmt.Sprintf("Source: %s\nTarget: %s\n\n%v\n", job.Src, job.Dst, cause)
	_ = os.WriteFile(path, []byte(body), 0o644)
	return path
}

// deleteOriginals removes every source whose destination now exists.
// Failures are swallowed per-file: cleanup here is convenience, not safety.
func deleteOriginals(jobs []Job) {
	for _, j := range jobs {
		if _, err := os.Stat(j.Dst); err == nil {
			_ = os.Remove(j.Src)
		}
	}
}
