// Package walker produces a lazy depth-first sequence of files under a root.
package walker

import (
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/observability"
)

// Entry is a file or directory visited by the walker.
type Entry struct {
	// Path is the absolute path of the entry.
	Path string
	// Rel is the path relative to the walk root, using the OS separator.
	Rel string
	// Info comes from a single stat call. For symlinked files it
	// describes the target.
	Info os.FileInfo
	// Dir is set for directory events.
	Dir bool
	// Children is the raw number of entries in a directory, hidden and
	// excluded ones included. Zero means the directory is empty on disk.
	Children int
}

// Options configures which directories and files are skipped.
type Options struct {
	// ExcludeDirs are directory base names never descended into.
	ExcludeDirs []string
	// ExcludePatterns are doublestar globs matched against slash-separated
	// paths relative to the root.
	ExcludePatterns []string
}

// Walker enumerates regular files. It is safe for concurrent use.
type Walker struct {
	excluded map[string]bool
	patterns []string
	logger   zerolog.Logger
}

// New creates a walker. Invalid exclude patterns are dropped with a warning.
func New(opts Options) *Walker {
	w := &Walker{
		excluded: make(map[string]bool, len(opts.ExcludeDirs)),
		logger:   observability.Logger("walker"),
	}
	for _, d := range opts.ExcludeDirs {
		w.excluded[d] = true
	}
	for _, p := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			w.logger.Warn().Str("pattern", p).Msg("ignoring invalid exclude pattern")
			continue
		}
		w.patterns = append(w.patterns, p)
	}
	return w
}

// All yields directories and regular files depth-first. A directory event
// is yielded before any of its contents; the root itself is yielded first
// with Rel ".". Entries within one directory come in enumeration order.
func (w *Walker) All(root string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			w.logger.Debug().Err(err).Str("path", root).Msg("walk root not a directory")
			return
		}
		w.walkDir(root, ".", info, yield)
	}
}

// Files yields only regular files.
func (w *Walker) Files(root string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for e := range w.All(root) {
			if e.Dir {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

func (w *Walker) walkDir(dir, rel string, info os.FileInfo, yield func(Entry) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", dir).Msg("skipping unreadable directory")
		return true
	}

	if !yield(Entry{Path: dir, Rel: rel, Info: info, Dir: true, Children: len(entries)}) {
		return false
	}

	for _, d := range entries {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		childRel := name
		if rel != "." {
			childRel = filepath.Join(rel, name)
		}
		if w.excludedPath(childRel) {
			continue
		}

		switch {
		case d.IsDir():
			if w.excluded[name] {
				continue
			}
			childInfo, err := d.Info()
			if err != nil {
				w.logger.Debug().Err(err).Str("path", path).Msg("skipping directory")
				continue
			}
			if !w.walkDir(path, childRel, childInfo, yield) {
				return false
			}

		case d.Type()&os.ModeSymlink != 0:
			// Symlinked directories are never descended.
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				continue
			}
			if !yield(Entry{Path: path, Rel: childRel, Info: target}) {
				return false
			}

		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				w.logger.Debug().Err(err).Str("path", path).Msg("skipping file")
				continue
			}
			if !yield(Entry{Path: path, Rel: childRel, Info: fi}) {
				return false
			}
		}
	}
	return true
}

func (w *Walker) excludedPath(rel string) bool {
	if len(w.patterns) == 0 {
		return false
	}
	slashed := filepath.ToSlash(rel)
	for _, p := range w.patterns {
		if ok, _ := doublestar.Match(p, slashed); ok {
			return true
		}
	}
	return false
}
