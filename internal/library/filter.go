package library

import (
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
)

// MatchesSuffix reports whether the final extension of name equals one of
// suffixes exactly. Matching is case-sensitive.
func MatchesSuffix(name string, suffixes []string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	return slices.Contains(suffixes, ext)
}

// FilterBySuffixes yields dir joined with the name of every non-directory
// entry whose extension is in suffixes, preserving input order. The sequence
// is lazy and may be consumed once or many times.
func FilterBySuffixes(entries []fs.DirEntry, dir string, suffixes []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if len(suffixes) == 0 {
			return
		}
		for _, entry := range entries {
			if entry.IsDir() || !MatchesSuffix(entry.Name(), suffixes) {
				continue
			}
			if !yield(filepath.Join(dir, entry.Name())) {
				return
			}
		}
	}
}
