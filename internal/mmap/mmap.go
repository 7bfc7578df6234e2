package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a read-only private mapping of a whole file. The zero value holds nothing and
// is ready to use.
type File struct {
	data []byte
}

// Map maps the file at path. A previously held mapping is released first. Empty files
// are valid and result in an empty mapping without calling mmap at all.
func (f *File) Map(path string) error {
	if err := f.Unmap(); err != nil {
		return err
	}

	fd, err := os.Open(path)
	if err != nil {
		return err
	}

	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("mmap: %s: not a regular file", path)
	}

	if info.Size() == 0 {
		return nil
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("mmap: %s: %w", path, err)
	}

	f.data = data
	return nil
}

// Bytes returns the mapped content. It must not be used after Unmap.
func (f *File) Bytes() []byte {
	return f.data
}

func (f *File) Len() int {
	return len(f.data)
}

// Mapped reports whether there is a mapping held.
func (f *File) Mapped() bool {
	return f.data != nil
}

// Unmap releases the mapping. It is safe to call when nothing is mapped.
func (f *File) Unmap() error {
	if f.data == nil {
		return nil
	}

	data := f.data
	f.data = nil

	return unix.Munmap(data)
}
