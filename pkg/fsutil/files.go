package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Copy copies the contents of srcFile to dstFile.
func Copy(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer src.Close()

	dst, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}
	defer dst.Close()

	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy from %s to %s: %w", srcFile, dstFile, err)
	}
	return nil
}

// CreateFilePerm creates a new file with the specified permissions.
func CreateFilePerm(name string, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
}

// TempName returns a hidden, unique file name used while a file is in flight.
func TempName() string {
	return TempPrefix + uuid.NewString() + ".tmp"
}

// AtomicWriteFile writes data to path via temp file and rename.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return AtomicWrite(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// AtomicWrite creates path with the content produced by fill. On any error
// the temp file is removed and path is left untouched.
func AtomicWrite(path string, perm os.FileMode, fill func(w io.Writer) error) (err error) {
	tmpPath := filepath.Join(filepath.Dir(path), TempName())
	tmp, err := CreateFilePerm(tmpPath, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", filepath.Dir(path), err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// LinkOrCopy makes link point at target with a relative symlink, falling
// back to a plain copy where symlinks are not available. An existing entry
// at link is replaced.
func LinkOrCopy(target, link string) error {
	_ = os.Remove(link)
	rel, err := filepath.Rel(filepath.Dir(link), target)
	if err == nil {
		if err = os.Symlink(rel, link); err == nil {
			return nil
		}
	}
	return Copy(target, link)
}
