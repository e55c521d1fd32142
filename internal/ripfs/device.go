package ripfs

import (
	"io"
	"time"
)

// OpenFlag mirrors the open-mode bits of the scratch filesystem
// contract: RDONLY/WRONLY/RDWR are mutually exclusive, the rest
// compose.
type OpenFlag int

const (
	RDONLY OpenFlag = 1 << iota
	WRONLY
	RDWR
	CREATE
	TRUNCATE
	APPEND
	EXCL
)

// Whence selects the origin of a Seek, named after the scratch
// filesystem contract's SET/INCR/XTND rather than io.Seek* so that
// callers translating from the PostScript device layer don't need a
// mapping table.
type Whence int

const (
	SET Whence = iota
	INCR
	XTND
)

func (w Whence) ioSeek() int {
	switch w {
	case INCR:
		return io.SeekCurrent
	case XTND:
		return io.SeekEnd
	default:
		return io.SeekStart
	}
}

// Info is the result of Stat.
type Info struct {
	Bytes   int64
	ModTime time.Time
}

// File is an open scratch file descriptor: a seekable read/write
// stream plus Abort, which discards buffered state and removes a
// file created by this open rather than committing it — used to tear
// down a logical file's scratch file on archive-parse failure without
// leaving a truncated stub behind.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	Seek(offset int64, whence Whence) (int64, error)
	Abort() error
}

// ListHandle is an opaque iterator token returned by StartList.
type ListHandle interface{}

// DeviceStatus reports coarse device health: free and total bytes.
type DeviceStatus struct {
	FreeBytes  int64
	TotalBytes int64
}

// Device is the scratch filesystem contract: the minimal capability
// both the image store's spill files (ImFile) and the zip device's
// extracted-entry scratch files need from whatever backs them,
// whether that's a real host directory or an in-memory stand-in used
// in tests and for ephemeral write-only archives.
type Device interface {
	Open(name string, flags OpenFlag) (File, error)
	Stat(name string) (Info, error)
	Delete(name string) error
	Rename(oldname, newname string) error

	StartList(pattern string) (ListHandle, error)
	Next(h ListHandle) (name string, ok bool, err error)
	EndList(h ListHandle) error

	Ioctl(opcode int, arg interface{}) error
	PreferredBufferSize() int
	DeviceStatus() DeviceStatus
}
