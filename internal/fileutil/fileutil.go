// Package fileutil holds filesystem primitives that never overwrite an
// existing destination.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ErrExist is returned when a no-replace operation finds the destination present.
var ErrExist = os.ErrExist

// ErrSourceKept marks a move whose destination is in place but whose source
// could not be removed afterwards.
var ErrSourceKept = errors.New("destination placed, source not removed")

// Swapped in tests to force the cross-device path and unlink failures.
var (
	renameNoReplace = RenameNoReplace
	removeSource    = os.Remove
)

// MoveNoReplace moves src to dst without ever replacing dst. Same-filesystem
// moves are a single atomic rename. Cross-device moves copy into a hidden
// temporary file next to dst, verify it, rename it into place, then remove src.
// When only that final removal fails the error wraps ErrSourceKept.
func MoveNoReplace(src, dst string) error {
	err := renameNoReplace(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := CopyFileVerified(src, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := renameNoReplace(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := removeSource(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrSourceKept, err)
	}
	return nil
}

// CopyFileVerified streams src over dst with SHA256 + size integrity
// verification and syncs the result. Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("sync copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
