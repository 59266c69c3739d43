//go:build linux
// +build linux

// File: internal/docroot/fs_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package docroot

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-httpd/api"
	"golang.org/x/sys/unix"
)

// FileSystem serves metadata and mappings straight from the kernel.
type FileSystem struct{}

// New returns the OS-backed file system.
func New() *FileSystem {
	return &FileSystem{}
}

// Stat implements api.FileSystem.
func (FileSystem) Stat(path string) (api.FileStat, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			return api.FileStat{}, fmt.Errorf("stat %s: %w", path, api.ErrNotExist)
		}
		return api.FileStat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return api.FileStat{
		Size:          st.Size,
		IsDir:         st.Mode&unix.S_IFMT == unix.S_IFDIR,
		OtherReadable: st.Mode&unix.S_IROTH != 0,
	}, nil
}

// Map implements api.FileSystem. The descriptor is closed once the mapping
// exists; the mapping alone keeps the pages reachable.
func (FileSystem) Map(path string, size int64) (api.MappedFile, error) {
	if size == 0 {
		return emptyMapping{}, nil
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mapping{data: data}, nil
}

type mapping struct {
	data []byte
}

func (m *mapping) Bytes() []byte { return m.data }

func (m *mapping) Unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// emptyMapping stands in for zero-length files, which mmap(2) rejects.
type emptyMapping struct{}

func (emptyMapping) Bytes() []byte { return nil }
func (emptyMapping) Unmap() error  { return nil }
