// Package zipdevice implements the ZIP device facade: mapping
// filesystem operations onto ziparchive.LogicalFile operations, plus
// the write-only staging device and the archive-writer pass that
// serializes a populated read-device back out to a file.
package zipdevice

import (
	"sync"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/ziparchive"
)

// Device is one mounted ZIP filesystem device.
type Device struct {
	mu      sync.Mutex
	archive *ziparchive.Archive
	scratch ripfs.Device
	names   *scratch.NameAllocator

	params Params

	open map[string]int // logical file name -> outstanding handle count, for EXCL bookkeeping
}

// New returns a device with no archive attached yet; SetParam("Filename", …)
// or SetParam("DataSource", …) selects the source Mount attaches, or
// leaving both unset yields an empty writable device once Mount is
// called.
func New(backing ripfs.Device, deviceID uint8) *Device {
	return &Device{
		scratch: backing,
		names:   scratch.NewNameAllocator(deviceID),
		open:    make(map[string]int),
	}
}

// Mount finalizes the device's archive source according to whatever
// parameters have been set. It must be called once before Open/Lookup
// are used.
func (d *Device) Mount() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.archive != nil {
		return nil
	}
	switch {
	case d.params.Filename != "":
		src, err := openSeekableSource(d.params.Filename)
		if err != nil {
			return err
		}
		size, err := src.Size()
		if err != nil {
			return err
		}
		a, err := ziparchive.OpenSeekable(src, size, d.scratch, d.names)
		if err != nil {
			return err
		}
		a.CheckCRC32 = d.params.CheckCRC32
		a.IgnoreCase = d.params.IgnoreCase
		a.OpenPackage = d.params.OpenPackage
		d.archive = a
	case d.params.DataSource != "":
		r, err := openStreamedSource(d.params.DataSource)
		if err != nil {
			return err
		}
		a := ziparchive.OpenStreamed(r, d.scratch, d.names)
		a.CheckCRC32 = d.params.CheckCRC32
		a.IgnoreCase = d.params.IgnoreCase
		a.OpenPackage = d.params.OpenPackage
		d.archive = a
	default:
		d.archive = ziparchive.OpenEmpty(d.scratch, d.names)
	}
	return nil
}

// Open looks the name up among the device's logical files (honoring
// IgnoreCase), creating a new one on CREATE when absent and the
// device is writable.
func (d *Device) Open(name string, flags ripfs.OpenFlag) (*ziparchive.FileHandle, error) {
	if d.params.ReadOnly && flags&(ripfs.WRONLY|ripfs.RDWR) != 0 {
		return nil, ripfs.E(ripfs.AccessDenied, "zipdevice.open", nil)
	}
	lf, ok := d.archive.Lookup(name)
	if !ok {
		if flags&ripfs.CREATE == 0 {
			return nil, ripfs.E(ripfs.NotFound, "zipdevice.open", nil)
		}
		lf = d.archive.NewFile(name)
	}
	return lf.Open(flags)
}

// Stat reports the logical size of a named file: its fully-extracted
// byte count if known, else the best size estimate from its pieces.
func (d *Device) Stat(name string) (ripfs.Info, error) {
	lf, ok := d.archive.Lookup(name)
	if !ok {
		return ripfs.Info{}, ripfs.E(ripfs.NotFound, "zipdevice.stat", nil)
	}
	return ripfs.Info{Bytes: lf.TotalSize()}, nil
}

// Delete removes a logical file from the device, subject to ReadOnly.
func (d *Device) Delete(name string) error {
	if d.params.ReadOnly {
		return ripfs.E(ripfs.AccessDenied, "zipdevice.delete", nil)
	}
	if !d.archive.Remove(name) {
		return ripfs.E(ripfs.NotFound, "zipdevice.delete", nil)
	}
	return nil
}

// DeviceIterator walks every mounted logical file's name in insertion
// order (ziparchive.Iterator already gives us this; this is a thin
// presentation wrapper).
type DeviceIterator struct {
	it *ziparchive.Iterator
}

func (d *Device) StartList() *DeviceIterator {
	return &DeviceIterator{it: d.archive.NewIterator()}
}

func (it *DeviceIterator) Next() (string, bool) {
	lf, ok := it.it.Next()
	if !ok {
		return "", false
	}
	return lf.Name, true
}
