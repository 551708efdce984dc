// Package scan extracts crate references from a Rust source tree and
// aggregates them into per-crate usage.
//
// Extraction is heuristic and textual, not a compiler front end: it
// recognizes use and extern crate declarations plus bare qualified paths,
// after stripping comments and string literals. That trade-off keeps the
// scanner fast and dependency-free at the cost of documented imprecision
// (see [Extract]).
//
// Files are scanned in parallel; each file produces an independent
// reference list, merged afterwards, so there is no shared mutable state
// during the walk.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depsync/pkg/errors"
)

// FileResult holds the references extracted from one file.
type FileResult struct {
	Path   string // relative to the scan root
	Origin Origin
	Refs   []Reference
}

// Result is the outcome of scanning a project tree.
type Result struct {
	Files []FileResult
	// Warnings collects per-file scan failures. A file that cannot be
	// read is logged and skipped; it never aborts the run.
	Warnings []error
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	"target": true,
	"vendor": true,
}

// Scan walks the Rust sources under root and extracts crate references
// from every .rs file, in parallel. Hidden directories and build output
// are skipped. Per-file read errors are collected as warnings.
func Scan(ctx context.Context, root string) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(name) == ".rs" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "walk %s", root)
	}

	results := make([]FileResult, len(paths))
	warnings := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			origin := classifyOrigin(rel)

			data, err := os.ReadFile(path)
			if err != nil {
				warnings[i] = errors.Wrap(errors.ErrCodeInvalidPath, err, "skipping %s", rel)
				return nil
			}
			results[i] = FileResult{
				Path:   rel,
				Origin: origin,
				Refs:   Extract(string(data), origin),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i := range results {
		if warnings[i] != nil {
			res.Warnings = append(res.Warnings, warnings[i])
			continue
		}
		res.Files = append(res.Files, results[i])
	}
	return res, nil
}

// classifyOrigin tags a file by its path within the project. Integration
// tests, benches and examples compile as dev targets; build.rs runs at
// build time; everything else is library/binary code.
func classifyOrigin(rel string) Origin {
	rel = filepath.ToSlash(rel)
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}

	if base == "build.rs" {
		return OriginBuildScript
	}
	for _, dir := range []string{"tests/", "benches/", "examples/"} {
		if strings.HasPrefix(rel, dir) || strings.Contains(rel, "/"+dir) {
			return OriginTest
		}
	}
	if strings.HasSuffix(base, "_test.rs") || strings.HasSuffix(base, "_tests.rs") {
		return OriginTest
	}
	return OriginLibrary
}
