// Package batch plans and executes recursive directory conversions. The
// planner builds a job list with destinations mirroring the source tree;
// the executor runs it across a fixed worker pool with per-job failure
// isolation.
package batch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions is the accepted source set, matched case-insensitively.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif", ".heics", ".heifs"}

// Job is one source→destination conversion unit.
type Job struct {
	Src string
	Dst string
}

// Discover walks root and returns files whose extension is in exts,
// sorted lexicographically so dry-run previews are stable within a run.
func Discover(root string, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// DestinationPath maps a source file to its output location: relativize to
// inRoot, swap the extension for .webp, re-root under outRoot. Two sources
// that normalize to the same destination are last-writer-wins.
func DestinationPath(src, inRoot, outRoot string) (string, error) {
	rel, err := filepath.Rel(inRoot, src)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".webp"
	return filepath.Join(outRoot, rel), nil
}

// Plan produces the deduplicated job list for a run. outRoot may equal
// inRoot, which yields in-place .webp siblings.
func Plan(inRoot, outRoot string, exts []string) ([]Job, error) {
	files, err := Discover(inRoot, exts)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(files))
	for _, src := range files {
		dst, err := DestinationPath(src, inRoot, outRoot)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, Job{Src: src, Dst: dst})
	}
	return jobs, nil
}
