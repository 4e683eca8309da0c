// Package fileutil writes mirrored assets to disk.
package fileutil

import (
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// FS is the file-system surface the mirror writes through.
type FS interface {
	// EnsureDir creates path and any missing parents.
	EnsureDir(path string) error
	// WriteFile replaces the file at path with data.
	WriteFile(path string, data []byte) error
}

// OS implements FS on the local file system.
type OS struct{}

// EnsureDir implements FS.
func (OS) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return apperrors.NewIO("mkdir", path, err)
	}
	return nil
}

// WriteFile implements FS. Parent directories are created as needed and
// the file is written to a temporary name and renamed into place, so a
// reader never sees a half-written asset.
func (o OS) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := o.EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".asset-*")
	if err != nil {
		return apperrors.NewIO("create", path, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return apperrors.NewIO("write", path, err)
	}

	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return apperrors.NewIO("close", path, err)
	}

	// CreateTemp uses 0600.
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return apperrors.NewIO("chmod", path, err)
	}

	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return apperrors.NewIO("rename", path, err)
	}
	return nil
}
