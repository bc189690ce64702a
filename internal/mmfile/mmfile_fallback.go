//go:build !unix

package mmfile

import "os"

// Map reads the file at path into memory. On platforms without mmap support
// the contents are simply loaded; the cleanup function is a no-op.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
