// Package batch turns an input path into the ordered list of work items a
// run will clean.
package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"scour/internal/engine"
	"scour/pkg/imgutil"
)

var ErrOutputRequired = errors.New("output directory required unless cleaning in place")

type Options struct {
	InPlace   bool
	OutputDir string
	// Suffix is inserted before the extension of every output name.
	Suffix string
	// Include keeps only files whose base name matches one of the patterns.
	// Empty means every file.
	Include []string
	// Kinds keeps only files whose sniffed type is listed. Empty means
	// every type.
	Kinds []imgutil.Kind
}

// Plan walks root (a file or a directory) in lexical order and returns one
// work item per selected file. An output directory nested inside root is
// never walked.
func Plan(root string, opts Options) ([]engine.WorkItem, error) {
	if !opts.InPlace && opts.OutputDir == "" {
		return nil, ErrOutputRequired
	}
	for _, pattern := range opts.Include {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var outputAbs string
	if !opts.InPlace {
		if outputAbs, err = filepath.Abs(opts.OutputDir); err != nil {
			return nil, err
		}
	}

	var items []engine.WorkItem
	add := func(fullPath, relPath string) error {
		ok, err := selected(fullPath, opts)
		if err != nil || !ok {
			return err
		}
		dest, err := destination(fullPath, relPath, outputAbs, opts)
		if err != nil {
			return err
		}
		items = append(items, engine.WorkItem{Index: len(items), Input: fullPath, Output: dest})
		return nil
	}

	if !info.IsDir() {
		if err := add(absRoot, filepath.Base(absRoot)); err != nil {
			return nil, err
		}
		return items, nil
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if outputAbs != "" && path != absRoot && isWithin(path, outputAbs) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		return add(path, rel)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func selected(path string, opts Options) (bool, error) {
	if len(opts.Include) > 0 {
		base := filepath.Base(path)
		matched := false
		for _, pattern := range opts.Include {
			if ok, _ := filepath.Match(pattern, base); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	if len(opts.Kinds) == 0 {
		return true, nil
	}
	kind, err := imgutil.SniffFile(path)
	if err != nil {
		return false, err
	}
	for _, k := range opts.Kinds {
		if k == kind {
			return true, nil
		}
	}
	return false, nil
}

func destination(fullPath, relPath, outputAbs string, opts Options) (string, error) {
	var dest string
	if opts.InPlace {
		dest = fullPath
	} else {
		dest = filepath.Join(outputAbs, relPath)
	}
	if opts.Suffix != "" {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + opts.Suffix + ext
	}
	if !opts.InPlace && filepath.Clean(dest) == filepath.Clean(fullPath) {
		return "", fmt.Errorf("output path for %s resolves to the input; use in-place mode or a different output", relPath)
	}
	return dest, nil
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
