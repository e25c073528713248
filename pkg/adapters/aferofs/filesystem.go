// Package aferofs provides a filesystem implementation backed by afero.
package aferofs

import (
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/user/playcore/pkg/ports"
)

// FileSystem implements ports.FileSystem on top of an afero.Fs.
type FileSystem struct {
	fs afero.Afero
}

// New creates a FileSystem on the operating system's file system.
func New() *FileSystem {
	return NewWith(afero.NewOsFs())
}

// NewMem creates a FileSystem held in memory.
func NewMem() *FileSystem {
	return NewWith(afero.NewMemMapFs())
}

// NewWith wraps an arbitrary afero.Fs.
func NewWith(fs afero.Fs) *FileSystem {
	return &FileSystem{fs: afero.Afero{Fs: fs}}
}

// Open opens a file for streaming reads.
func (fs *FileSystem) Open(path string) (io.ReadCloser, error) {
	return fs.fs.Open(path)
}

// Size returns the size of a file in bytes.
func (fs *FileSystem) Size(path string) (int64, error) {
	info, err := fs.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadFile reads the entire contents of a file.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	return fs.fs.ReadFile(path)
}

// WriteFile writes data to a file, creating parent directories if necessary.
func (fs *FileSystem) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := fs.fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return fs.fs.WriteFile(path, data, 0644)
}

// MkdirAll creates a directory and all parent directories.
func (fs *FileSystem) MkdirAll(path string) error {
	return fs.fs.MkdirAll(path, 0755)
}

// Exists checks if a file or directory exists.
func (fs *FileSystem) Exists(path string) (bool, error) {
	return fs.fs.Exists(path)
}

// Remove deletes a file or empty directory.
func (fs *FileSystem) Remove(path string) error {
	return fs.fs.Remove(path)
}

// Ensure FileSystem implements ports.FileSystem
var _ ports.FileSystem = (*FileSystem)(nil)
