package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LockedFile is an encrypted music file awaiting unlock.
type LockedFile struct {
	Path string
	Name string
}

// NewLockedFile describes the file at path.
func NewLockedFile(path string) LockedFile {
	return LockedFile{Path: path, Name: filepath.Base(path)}
}

// Ext returns the locked extension including the leading dot.
func (f LockedFile) Ext() string {
	return filepath.Ext(f.Name)
}

// Stem returns the file name without its locked extension.
func (f LockedFile) Stem() string {
	return strings.TrimSuffix(f.Name, f.Ext())
}

// Discover lists dir and returns the locked files in name order. Entries
// with an empty stem (".ncm") are ignored since no target name exists for them.
func Discover(dir string, suffixes []string) ([]LockedFile, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve music dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read music dir: %w", err)
	}

	var files []LockedFile
	for path := range FilterBySuffixes(entries, abs, suffixes) {
		file := NewLockedFile(path)
		if file.Stem() == "" {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}
