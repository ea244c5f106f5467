//go:build !linux

package fileutil

// RenameNoReplace renames src to dst, failing with an error that satisfies
// errors.Is(err, os.ErrExist) when dst already exists.
func RenameNoReplace(src, dst string) error {
	return linkRename(src, dst)
}
