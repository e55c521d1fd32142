package imagestore

import (
	"io"
	"sync"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
)

// ImFile is one append-only spill file backing purged blocks. Writers
// only ever append; readers seek-and-read under a mutex since the
// scratch Device contract doesn't promise ReadAt semantics
// independent of the file's current offset.
type ImFile struct {
	mu   sync.Mutex
	dev  ripfs.Device
	name string
	f    ripfs.File
	size int64
}

func newImFile(dev ripfs.Device, names *scratch.NameAllocator) (*ImFile, error) {
	name := names.Next()
	f, err := dev.Open(name, ripfs.RDWR|ripfs.CREATE|ripfs.EXCL)
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "imfile.create", err)
	}
	return &ImFile{dev: dev, name: name, f: f}, nil
}

// Append writes data at the current end of the file and returns the
// offset it was written at.
func (f *ImFile) Append(data []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.f.Seek(f.size, ripfs.SET); err != nil {
		return 0, ripfs.E(ripfs.IOError, "imfile.append", err)
	}
	n, err := f.f.Write(data)
	f.size += int64(n)
	if err != nil {
		return 0, ripfs.E(ripfs.IOError, "imfile.append", err)
	}
	return f.size - int64(n), nil
}

// ReadAt fills buf from the given offset.
func (f *ImFile) ReadAt(buf []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.f.Seek(offset, ripfs.SET); err != nil {
		return ripfs.E(ripfs.IOError, "imfile.read", err)
	}
	if _, err := io.ReadFull(f.f, buf); err != nil {
		return ripfs.E(ripfs.IOError, "imfile.read", err)
	}
	return nil
}

// Close releases the underlying scratch file without deleting it; the
// bytes it holds may still be referenced by on-disk blocks.
func (f *ImFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}
