// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-httpd/api"
)

// File is an in-memory document.
type File struct {
	Data          []byte
	IsDir         bool
	OtherReadable bool
}

// FileSystem is an in-memory api.FileSystem that counts live mappings.
type FileSystem struct {
	mu      sync.Mutex
	files   map[string]File
	mapped  int
	MapErr  error // returned by Map when set
	StatErr error // returned by Stat for present paths when set
}

// NewFileSystem creates an empty file system.
func NewFileSystem() *FileSystem {
	return &FileSystem{files: make(map[string]File)}
}

// Put stores a world-readable regular file.
func (fs *FileSystem) Put(path string, data string) {
	fs.PutFile(path, File{Data: []byte(data), OtherReadable: true})
}

// PutFile stores f at path.
func (fs *FileSystem) PutFile(path string, f File) {
	fs.mu.Lock()
	fs.files[path] = f
	fs.mu.Unlock()
}

// Mapped returns the number of mappings not yet released.
func (fs *FileSystem) Mapped() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mapped
}

func (fs *FileSystem) Stat(path string) (api.FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[path]
	if !ok {
		return api.FileStat{}, fmt.Errorf("stat %s: %w", path, api.ErrNotExist)
	}
	if fs.StatErr != nil {
		return api.FileStat{}, fs.StatErr
	}
	return api.FileStat{Size: int64(len(f.Data)), IsDir: f.IsDir, OtherReadable: f.OtherReadable}, nil
}

func (fs *FileSystem) Map(path string, size int64) (api.MappedFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.MapErr != nil {
		return nil, fs.MapErr
	}
	f, ok := fs.files[path]
	if !ok {
		return nil, fmt.Errorf("map %s: %w", path, api.ErrNotExist)
	}
	fs.mapped++
	return &mapping{fs: fs, data: f.Data[:size]}, nil
}

type mapping struct {
	fs   *FileSystem
	data []byte
	done bool
}

func (m *mapping) Bytes() []byte { return m.data }

func (m *mapping) Unmap() error {
	m.fs.mu.Lock()
	defer m.fs.mu.Unlock()
	if !m.done {
		m.done = true
		m.fs.mapped--
	}
	return nil
}

var _ api.FileSystem = (*FileSystem)(nil)
