// Package scratch implements the ripfs.Device contract: a host
// directory backend for real use, and an in-memory backend for tests
// and for archives mounted with no -Filename (an empty, writable
// device).
package scratch

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// HostFS roots a ripfs.Device at a real directory. Every scratch file
// name handed to it (e.g. "ZIP/0155ab02") is joined under Dir, so
// names must already be relative and clean — callers get that for
// free from the NameAllocator.
type HostFS struct {
	Dir string

	mu      sync.Mutex
	listing map[*hostList]struct{}
}

// NewHostFS creates (if needed) and roots a scratch device at dir.
func NewHostFS(dir string) (*HostFS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ripfs.E(ripfs.IOError, "scratch.NewHostFS", err)
	}
	return &HostFS{Dir: dir, listing: make(map[*hostList]struct{})}, nil
}

func (h *HostFS) path(name string) string {
	return filepath.Join(h.Dir, filepath.FromSlash(name))
}

func toOSFlags(flags ripfs.OpenFlag) int {
	f := os.O_RDONLY
	switch {
	case flags&ripfs.RDWR != 0:
		f = os.O_RDWR
	case flags&ripfs.WRONLY != 0:
		f = os.O_WRONLY
	}
	if flags&ripfs.CREATE != 0 {
		f |= os.O_CREATE
	}
	if flags&ripfs.TRUNCATE != 0 {
		f |= os.O_TRUNC
	}
	if flags&ripfs.APPEND != 0 {
		f |= os.O_APPEND
	}
	if flags&ripfs.EXCL != 0 {
		f |= os.O_EXCL
	}
	return f
}

// Open opens or creates name. When flags carries EXCL, the file is
// additionally advisory-locked (unix.Flock, LOCK_EX|LOCK_NB) so a
// concurrent Open of the same scratch file fails fast instead of
// racing writes into it — the host-level analogue of a ZipFile's
// exclusive flag.
func (h *HostFS) Open(name string, flags ripfs.OpenFlag) (ripfs.File, error) {
	p := h.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, ripfs.E(ripfs.IOError, "Open", err)
	}
	_, statErr := os.Stat(p)
	f, err := os.OpenFile(p, toOSFlags(flags), 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ripfs.E(ripfs.NotFound, "Open", err)
		}
		if os.IsExist(err) {
			return nil, ripfs.E(ripfs.AccessDenied, "Open", err)
		}
		return nil, ripfs.E(ripfs.IOError, "Open", err)
	}
	locked := false
	if flags&ripfs.EXCL != 0 {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			return nil, ripfs.E(ripfs.AccessDenied, "Open", xerrors.Errorf("flock %s: %w", name, err))
		}
		locked = true
	}
	created := flags&ripfs.CREATE != 0 && os.IsNotExist(statErr)
	return &hostFile{f: f, path: p, locked: locked, removeOnAbort: created}, nil
}

type hostFile struct {
	f             *os.File
	path          string
	locked        bool
	removeOnAbort bool
}

func (hf *hostFile) Read(p []byte) (int, error)  { return hf.f.Read(p) }
func (hf *hostFile) Write(p []byte) (int, error) { return hf.f.Write(p) }

func (hf *hostFile) Seek(offset int64, whence ripfs.Whence) (int64, error) {
	return hf.f.Seek(offset, whence.ioSeek())
}

func (hf *hostFile) Close() error {
	if hf.locked {
		unix.Flock(int(hf.f.Fd()), unix.LOCK_UN)
	}
	return hf.f.Close()
}

// Abort discards the file: if this open created it, it is removed
// entirely rather than left as a truncated stub, so error teardown
// never leaves a half-written file behind.
func (hf *hostFile) Abort() error {
	err := hf.Close()
	if hf.removeOnAbort {
		if rmErr := os.Remove(hf.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

func (h *HostFS) Stat(name string) (ripfs.Info, error) {
	fi, err := os.Stat(h.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ripfs.Info{}, ripfs.E(ripfs.NotFound, "Stat", err)
		}
		return ripfs.Info{}, ripfs.E(ripfs.IOError, "Stat", err)
	}
	return ripfs.Info{Bytes: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (h *HostFS) Delete(name string) error {
	if err := os.Remove(h.path(name)); err != nil {
		if os.IsNotExist(err) {
			return ripfs.E(ripfs.NotFound, "Delete", err)
		}
		return ripfs.E(ripfs.IOError, "Delete", err)
	}
	return nil
}

func (h *HostFS) Rename(oldname, newname string) error {
	np := h.path(newname)
	if err := os.MkdirAll(filepath.Dir(np), 0755); err != nil {
		return ripfs.E(ripfs.IOError, "Rename", err)
	}
	if err := os.Rename(h.path(oldname), np); err != nil {
		return ripfs.E(ripfs.IOError, "Rename", err)
	}
	return nil
}

type hostList struct {
	pattern string
	names   []string
	pos     int
}

func (h *HostFS) StartList(pattern string) (ripfs.ListHandle, error) {
	var names []string
	err := filepath.Walk(h.Dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.Dir, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := filepath.Match(pattern, rel); ok || pattern == "*" {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "StartList", err)
	}
	sort.Strings(names)
	l := &hostList{pattern: pattern, names: names}
	h.mu.Lock()
	h.listing[l] = struct{}{}
	h.mu.Unlock()
	return l, nil
}

func (h *HostFS) Next(handle ripfs.ListHandle) (string, bool, error) {
	l, ok := handle.(*hostList)
	if !ok {
		return "", false, ripfs.E(ripfs.InvalidArgument, "Next", nil)
	}
	if l.pos >= len(l.names) {
		return "", false, nil
	}
	name := l.names[l.pos]
	l.pos++
	return name, true, nil
}

func (h *HostFS) EndList(handle ripfs.ListHandle) error {
	l, ok := handle.(*hostList)
	if !ok {
		return ripfs.E(ripfs.InvalidArgument, "EndList", nil)
	}
	h.mu.Lock()
	delete(h.listing, l)
	h.mu.Unlock()
	return nil
}

func (h *HostFS) Ioctl(opcode int, arg interface{}) error {
	return ripfs.E(ripfs.Unsupported, "Ioctl", nil)
}

func (h *HostFS) PreferredBufferSize() int { return 64 * 1024 }

func (h *HostFS) DeviceStatus() ripfs.DeviceStatus {
	var stfs unix.Statfs_t
	if err := unix.Statfs(h.Dir, &stfs); err != nil {
		return ripfs.DeviceStatus{}
	}
	return ripfs.DeviceStatus{
		FreeBytes:  int64(stfs.Bavail) * int64(stfs.Bsize),
		TotalBytes: int64(stfs.Blocks) * int64(stfs.Bsize),
	}
}

// Purge removes every scratch file under dir whose name matches the
// "ZIP/" + hex2 + hex6 naming scheme, so that files left over from a
// previous, uncleanly terminated run don't collide with freshly
// allocated names.
func Purge(dir string) error {
	entries, err := ioutil.ReadDir(filepath.Join(dir, "ZIP"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ripfs.E(ripfs.IOError, "Purge", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != 8 || strings.Trim(name, "0123456789abcdef") != "" {
			continue
		}
		os.Remove(filepath.Join(dir, "ZIP", name))
	}
	return nil
}

var _ io.ReadWriteCloser = (*hostFile)(nil)
