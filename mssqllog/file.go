package mssqllog

import (
	"fmt"
	"os"
)

// FileReader provides random-access reads of an MDF or LDF file by
// (offset, length), the sole I/O primitive the rest of this package needs.
type FileReader struct {
	f    *os.File
	size int64
}

// OpenFileReader opens path for random-access reading.
func OpenFileReader(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mssqllog: opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mssqllog: stat %s: %w", path, err)
	}
	return &FileReader{f: f, size: info.Size()}, nil
}

// Size returns the file's byte length.
func (r *FileReader) Size() int64 {
	return r.size
}

// ReadAt reads exactly length bytes starting at offset. A short read at end
// of file returns the bytes actually available with no error, matching the
// scanners' "stop on short read" convention.
func (r *FileReader) ReadAt(offset int64, length int) ([]byte, error) {
	if offset >= r.size {
		return nil, nil
	}
	if offset+int64(length) > r.size {
		length = int(r.size - offset)
	}
	buf := make([]byte, length)
	n, err := r.f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("mssqllog: read at %d: %w", offset, err)
	}
	return buf[:n], nil
}

// Close releases the underlying file handle.
func (r *FileReader) Close() error {
	return r.f.Close()
}
