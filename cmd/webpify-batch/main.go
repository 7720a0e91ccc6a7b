// Command webpify-batch walks a directory tree and transcodes every image
// it finds into WebP, mirroring the source layout under the output root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/batch"
)

const previewLimit = 20

func main() {
	var (
		input           string
		output          string
		quality         int
		pngQuality      int
		lossless        bool
		maxWidth        int
		maxHeight       int
		extList         string
		overwrite       bool
		deleteOriginals bool
		workers         int
		dryRun          bool
		strip           bool
	)

	flag.StringVar(&input, "input", "", "source directory to scan (required)")
	flag.StringVar(&input, "i", "", "shorthand for -input")
	flag.StringVar(&output, "output", "", "destination root (default: the input root, in-place siblings)")
	flag.StringVar(&output, "o", "", "shorthand for -output")
	flag.IntVar(&quality, "quality", 70, "lossy quality 1-100")
	flag.IntVar(&quality, "q", 70, "shorthand for -quality")
	flag.BoolVar(&lossless, "lossless", false, "force lossless encoding for every file")
	flag.IntVar(&pngQuality, "png-quality", 90, "lossless effort hint for opaque PNG sources")
	flag.IntVar(&maxWidth, "max-width", 0, "downscale images wider than this (0 = off)")
	flag.IntVar(&maxHeight, "max-height", 0, "downscale images taller than this (0 = off)")
	flag.StringVar(&extList, "ext", "", "comma-separated extensions to convert (default: common image types)")
	flag.BoolVar(&overwrite, "overwrite", false, "re-encode even when the destination already exists")
	flag.BoolVar(&deleteOriginals, "delete-originals", false, "remove source files that converted successfully")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "parallel conversion workers")
	flag.BoolVar(&dryRun, "dry-run", false, "list planned conversions without writing anything")
	flag.BoolVar(&strip, "strip", false, "drop ICC and EXIF metadata from the output")
	flag.Parse()

	if input == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		flag.Usage()
		os.Exit(1)
	}

	info, err := os.Stat(input)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "error: input %q is not a directory\n", input)
		os.Exit(1)
	}

	// No output root means in-place: each .webp lands next to its source.
	if output == "" {
		output = input
	}

	exts := batch.DefaultExtensions
	if extList != "" {
		exts = nil
		for _, e := range strings.Split(extList, ",") {
			e = strings.TrimSpace(strings.ToLower(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts = append(exts, e)
		}
	}

	jobs, err := batch.Plan(input, output, exts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(jobs) == 0 {
		fmt.Println("no images found, nothing to do")
		return
	}

	if dryRun {
		fmt.Printf("dry run: %d conversions planned\n", len(jobs))
		for i, job := range jobs {
			if i == previewLimit {
				fmt.Printf("  ... and %d more\n", len(jobs)-previewLimit)
				break
			}
			fmt.Printf("  %s -> %s\n", job.Src, job.Dst)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("converting %d images from %s to %s (workers=%d, quality=%d)\n",
		len(jobs), input, output, workers, quality)

	summary := batch.Run(ctx, jobs, batch.Options{
		Quality:          quality,
		Lossless:         lossless,
		MaxWidth:         maxWidth,
		MaxHeight:        maxHeight,
		Overwrite:        overwrite,
		StripMetadata:    strip,
		PNGOpaqueQuality: pngQuality,
		DeleteOriginals:  deleteOriginals,
		Workers:          workers,
	})

	fmt.Println("----------------------------------------")
	fmt.Printf("converted: %d\n", summary.Converted)
	fmt.Printf("skipped:   %d\n", summary.Skipped)
	fmt.Printf("failed:    %d\n", summary.Failed)
	if summary.Failed > 0 {
		fmt.Println("failures are recorded next to each source as <name>.ERROR.txt")
	}
}
