package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestRenameNoReplace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.flac")
	dst := filepath.Join(dir, "moved.flac")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RenameNoReplace(src, dst); err != nil {
		t.Fatalf("RenameNoReplace: %v", err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected source gone, stat err=%v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "audio" {
		t.Fatalf("unexpected destination content %q (err=%v)", got, err)
	}
}

func TestRenameNoReplaceKeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.flac")
	dst := filepath.Join(dir, "existing.flac")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := RenameNoReplace(src, dst)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "old" {
		t.Fatalf("destination was overwritten: %q", got)
	}
	if got, _ := os.ReadFile(src); string(got) != "new" {
		t.Fatalf("source was modified: %q", got)
	}
}

func TestMoveNoReplaceSameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp3")
	dst := filepath.Join(dir, "library", "a.mp3")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := MoveNoReplace(src, dst); err != nil {
		t.Fatalf("MoveNoReplace: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "mp3" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o640); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(filepath.Join(dir, "dst")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no destination, stat err=%v", err)
	}
}

// crossDevice makes the first rename of src fail with EXDEV, running before
// first when set, and passes every other rename through.
func crossDevice(t *testing.T, src string, before func()) {
	t.Helper()
	orig := renameNoReplace
	t.Cleanup(func() { renameNoReplace = orig })
	renameNoReplace = func(from, to string) error {
		if from == src {
			if before != nil {
				before()
			}
			return &os.LinkError{Op: "rename", Old: from, New: to, Err: syscall.EXDEV}
		}
		return orig(from, to)
	}
}

func failingRemove(t *testing.T) {
	t.Helper()
	orig := removeSource
	t.Cleanup(func() { removeSource = orig })
	removeSource = func(string) error { return syscall.EACCES }
}

func requireOnlyEntries(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, entry := range entries {
		got = append(got, entry.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("entries in %s = %v, want %v", dir, got, want)
	}
}

func TestMoveNoReplaceCrossDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "downloads", "a.flac")
	library := filepath.Join(dir, "music")
	dst := filepath.Join(library, "a.flac")
	for _, d := range []string{filepath.Dir(src), library} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(src, []byte("flac"), 0o644); err != nil {
		t.Fatal(err)
	}
	crossDevice(t, src, nil)

	if err := MoveNoReplace(src, dst); err != nil {
		t.Fatalf("MoveNoReplace: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "flac" {
		t.Fatalf("unexpected content %q", got)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
	requireOnlyEntries(t, library, "a.flac")
}

func TestMoveNoReplaceCrossDeviceKeepsDestinationThatAppears(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.flac.download")
	library := filepath.Join(dir, "music")
	dst := filepath.Join(library, "a.flac")
	if err := os.MkdirAll(library, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	crossDevice(t, src, func() {
		if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
			t.Error(err)
		}
	})

	err := MoveNoReplace(src, dst)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "old" {
		t.Fatalf("destination was overwritten: %q", got)
	}
	if got, _ := os.ReadFile(src); string(got) != "new" {
		t.Fatalf("source was modified: %q", got)
	}
	requireOnlyEntries(t, library, "a.flac")
}

func TestMoveNoReplaceCrossDeviceSourceKept(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.flac.download")
	dst := filepath.Join(dir, "a.flac")
	if err := os.WriteFile(src, []byte("flac"), 0o644); err != nil {
		t.Fatal(err)
	}
	crossDevice(t, src, nil)
	failingRemove(t)

	err := MoveNoReplace(src, dst)
	if !errors.Is(err, ErrSourceKept) {
		t.Fatalf("expected ErrSourceKept, got %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "flac" {
		t.Fatalf("expected destination placed, got %q", got)
	}
}

func TestLinkRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.part")
	dst := filepath.Join(dir, "a.flac")
	if err := os.WriteFile(src, []byte("flac"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := linkRename(src, dst); err != nil {
		t.Fatalf("linkRename: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "flac" {
		t.Fatalf("unexpected content %q", got)
	}
	requireOnlyEntries(t, dir, "a.flac")
}

func TestLinkRenameKeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.part")
	dst := filepath.Join(dir, "a.flac")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := linkRename(src, dst)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Op != "rename" {
		t.Fatalf("expected rename LinkError, got %#v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "old" {
		t.Fatalf("destination was overwritten: %q", got)
	}
	if got, _ := os.ReadFile(src); string(got) != "new" {
		t.Fatalf("source was modified: %q", got)
	}
}

func TestLinkRenameSourceKept(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.part")
	dst := filepath.Join(dir, "a.flac")
	if err := os.WriteFile(src, []byte("flac"), 0o644); err != nil {
		t.Fatal(err)
	}
	failingRemove(t)

	err := linkRename(src, dst)
	if !errors.Is(err, ErrSourceKept) {
		t.Fatalf("expected ErrSourceKept, got %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "flac" {
		t.Fatalf("expected destination placed, got %q", got)
	}
}
