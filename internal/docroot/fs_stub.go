//go:build !linux
// +build !linux

// File: internal/docroot/fs_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package docroot

import (
	"fmt"

	"github.com/momentics/hioload-httpd/api"
)

// FileSystem is unavailable on this platform.
type FileSystem struct{}

// New returns the stub file system.
func New() *FileSystem {
	return &FileSystem{}
}

// Stat implements api.FileSystem.
func (FileSystem) Stat(path string) (api.FileStat, error) {
	return api.FileStat{}, fmt.Errorf("stat %s: %w", path, api.ErrNotSupported)
}

// Map implements api.FileSystem.
func (FileSystem) Map(path string, size int64) (api.MappedFile, error) {
	return nil, fmt.Errorf("mmap %s: %w", path, api.ErrNotSupported)
}
