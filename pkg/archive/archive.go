// Package archive opens package artifacts (wheels, zip and tar sdists) as
// read-only file systems and builds them from directories.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// Manager handles archive reading and creation operations.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Open opens the archive at archivePath as a file system. The format is
// detected from the file header, so wheels open as zip archives regardless
// of their extension. The returned close function must be called when done.
func (am *Manager) Open(ctx context.Context, archivePath string) (fs.FS, func(), error) {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	closeFn := func() {}
	if closer, ok := fsys.(io.Closer); ok {
		closeFn = func() { _ = closer.Close() }
	}
	return fsys, closeFn, nil
}

// Find walks the archive and returns the path of every regular file for
// which match returns true, in walk order.
func (am *Manager) Find(ctx context.Context, archivePath string, match func(path string) bool) ([]string, error) {
	fsys, closeFn, err := am.Open(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var found []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && match(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk archive %s: %w", archivePath, err)
	}
	return found, nil
}

// ReadFile returns the content of one entry of the archive.
func (am *Manager) ReadFile(ctx context.Context, archivePath, filePath string) ([]byte, error) {
	fsys, closeFn, err := am.Open(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from archive: %w", filePath, err)
	}
	return data, nil
}

// Create creates an archive from the specified source directory. Paths
// ending in .whl or .zip produce a zip archive; everything else is a
// gzip-compressed tarball.
func (am *Manager) Create(ctx context.Context, sourceDir, archivePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	defer func() {
		_ = file.Sync()
		_ = file.Close()
	}()

	if err := formatFor(archivePath).Archive(ctx, file, archiveFiles); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

func formatFor(archivePath string) archives.Archiver {
	lower := strings.ToLower(archivePath)
	if strings.HasSuffix(lower, ".whl") || strings.HasSuffix(lower, ".zip") {
		return archives.Zip{}
	}
	return archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
}
