// Package loader discovers test files per project glob and builds the
// initial suite tree by loading each one's plugin (spec.md §4.B).
package loader

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cboone/tact/internal/config"
	"github.com/cboone/tact/internal/declare"
	"github.com/cboone/tact/internal/suite"
)

// Load walks cwd for every project in cfg.Projects, matching each
// project's TestMatch glob against paths relative to cwd, and loads the
// matched files' plugins into a fresh suite tree rooted at the returned
// Suite.
func Load(cfg config.Config, cwd string) (*suite.Suite, error) {
	root := suite.NewRoot()

	for _, pc := range cfg.Projects {
		proj, err := root.AddChild(pc.Name, suite.Project)
		if err != nil {
			return nil, fmt.Errorf("loader: project %q: %w", pc.Name, err)
		}
		if pc.Use != nil {
			proj.Options = *pc.Use
		}

		files, err := discoverTestFiles(cwd, pc.TestMatch)
		if err != nil {
			return nil, fmt.Errorf("loader: project %q: %w", pc.Name, err)
		}

		for _, f := range files {
			fileTitle := filepath.Base(f)
			if _, _, err := declare.LoadFile(proj, fileTitle, f); err != nil {
				return nil, fmt.Errorf("loader: project %q: %w", pc.Name, err)
			}
		}
	}

	return root, nil
}

// discoverTestFiles walks root for files whose path relative to root
// matches pattern (doublestar syntax, e.g. "**/*_test.*"). Results are
// returned in a stable, sorted order.
func discoverTestFiles(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid testMatch pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	var matches []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" || d.Name() == "__snapshots__" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("invalid testMatch pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}
