package fileutil

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// linkRename emulates a no-replace rename with link + unlink. link(2) fails
// when the destination exists, which closes the check-then-rename race.
// An unlink failure after the link wraps ErrSourceKept.
func linkRename(src, dst string) error {
	if err := os.Link(src, dst); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) {
			switch {
			case errors.Is(linkErr.Err, syscall.EXDEV):
				return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
			case errors.Is(linkErr.Err, syscall.EEXIST):
				return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
			}
		}
		return err
	}
	if err := removeSource(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrSourceKept, err)
	}
	return nil
}
