// Package memmap maps files into memory for sharing with the media driver.
package memmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a memory-mapped file. The mapping stays valid until Close.
type File struct {
	file *os.File
	data []byte
}

// MapExisting maps an existing file read-write and shared. A length of 0
// maps the whole file.
func MapExisting(path string, offset int64, length int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if length == 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		length = int(info.Size() - offset)
	}

	data, err := unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &File{file: f, data: data}, nil
}

// MapNew creates (or truncates) a file of the given length and maps it
// read-write and shared.
func MapNew(path string, length int) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	if err := f.Truncate(int64(length)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &File{file: f, data: data}, nil
}

// Data returns the mapped region.
func (f *File) Data() []byte { return f.data }

// Name returns the path of the underlying file.
func (f *File) Name() string { return f.file.Name() }

// Sync flushes the mapping to the backing file.
func (f *File) Sync() error {
	if err := unix.Msync(f.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", f.file.Name(), err)
	}
	return nil
}

// Close unmaps the region and closes the file. Safe to call once.
func (f *File) Close() error {
	var first error
	if f.data != nil {
		if err := unix.Munmap(f.data); err != nil && first == nil {
			first = err
		}
		f.data = nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil && first == nil {
			first = err
		}
		f.file = nil
	}
	return first
}
