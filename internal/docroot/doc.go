// Package docroot implements api.FileSystem on top of the operating system:
// stat(2) for metadata and a private read-only mmap(2) for zero-copy bodies.
package docroot
