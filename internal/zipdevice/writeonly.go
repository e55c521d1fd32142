package zipdevice

import (
	"sync"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/ziparchive"
)

// WriteonlyDevice wraps a Device to enforce a single-in-flight-file
// discipline: only one logical file may be open for writing at a
// time, and once the active entry closes the device is ready to
// accept the next one. Every entry is staged through the normal
// LogicalFile write path and deflated lazily by EmitArchive at
// finalize time rather than incrementally per write.
type WriteonlyDevice struct {
	*Device

	mu     sync.Mutex
	active string
	errored bool
}

// NewWriteonly wraps an empty, writable Device.
func NewWriteonly(backing ripfs.Device, deviceID uint8) *WriteonlyDevice {
	d := New(backing, deviceID)
	return &WriteonlyDevice{Device: d}
}

// OpenNext begins a new entry named name. It fails if another entry is
// still active or the device has been marked errored by CloseFile.
func (w *WriteonlyDevice) OpenNext(name string) (*ziparchive.FileHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored {
		return nil, ripfs.E(ripfs.IOError, "writeonly.open", nil)
	}
	if w.active != "" {
		return nil, ripfs.E(ripfs.AccessDenied, "writeonly.open", nil)
	}
	if w.archive == nil {
		if err := w.Mount(); err != nil {
			return nil, err
		}
	}
	lf := w.archive.NewFile(name)
	h, err := lf.Open(ripfs.WRONLY | ripfs.CREATE)
	if err != nil {
		return nil, err
	}
	w.active = name
	return h, nil
}

// CloseActive ends the current entry, making the device ready for the
// next OpenNext call.
func (w *WriteonlyDevice) CloseActive(h *ziparchive.FileHandle) error {
	w.mu.Lock()
	w.active = ""
	w.mu.Unlock()
	return h.Close()
}

// CloseFile marks the device errored: any host-side close of the
// underlying archive file out-of-band (e.g. the scratch device being
// torn down) must cause subsequent writes to fail cleanly rather than
// silently lose data.
func (w *WriteonlyDevice) CloseFile() {
	w.mu.Lock()
	w.errored = true
	w.mu.Unlock()
}

// Finalize emits the staged entries as a real archive at path,
// flushing every pending write and writing the central directory.
func (w *WriteonlyDevice) Finalize(path string) error {
	w.mu.Lock()
	a := w.archive
	zip64 := w.params.ZIP64Files
	w.mu.Unlock()
	if a == nil {
		return ripfs.E(ripfs.InvalidArgument, "writeonly.finalize", nil)
	}
	a.FlushAll()
	return EmitArchive(path, a, zip64)
}
