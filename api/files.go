// File: api/files.go
// Author: momentics <momentics@gmail.com>
//
// File metadata and memory-mapping capability consumed by connections
// when they resolve a request target against the document root.

package api

// FileStat is the subset of file metadata the request pipeline inspects.
type FileStat struct {
	Size          int64
	IsDir         bool
	OtherReadable bool // world-readable permission bit
}

// MappedFile is a read-only view of a file's contents.
type MappedFile interface {
	Bytes() []byte
	Unmap() error
}

// FileSystem resolves absolute paths to metadata and mappings.
type FileSystem interface {
	// Stat returns metadata for path. A missing path yields an error matching ErrNotExist.
	Stat(path string) (FileStat, error)

	// Map opens path read-only, maps size bytes and closes the descriptor.
	// The mapping stays valid until Unmap.
	Map(path string, size int64) (MappedFile, error)
}
