package scratch

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// MemFS is an in-memory ripfs.Device: every "file" is a byte slice
// held in a map. It backs tests and archives mounted with an empty
// -Filename, which must still be writable without ever touching a
// host directory.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFileData
}

type memFileData struct {
	bytes   []byte
	modTime time.Time
	locked  bool
}

// NewMemFS returns an empty in-memory scratch device.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memFileData)}
}

func (m *MemFS) Open(name string, flags ripfs.OpenFlag) (ripfs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.files[name]
	if !exists {
		if flags&ripfs.CREATE == 0 {
			return nil, ripfs.E(ripfs.NotFound, "Open", nil)
		}
		d = &memFileData{modTime: time.Now()}
		m.files[name] = d
	} else if flags&ripfs.EXCL != 0 && d.locked {
		return nil, ripfs.E(ripfs.AccessDenied, "Open", nil)
	}
	if flags&ripfs.EXCL != 0 {
		d.locked = true
	}
	if flags&ripfs.TRUNCATE != 0 {
		d.bytes = nil
	}
	pos := int64(0)
	if flags&ripfs.APPEND != 0 {
		pos = int64(len(d.bytes))
	}
	return &memFile{fs: m, name: name, data: d, pos: pos, created: !exists}, nil
}

type memFile struct {
	fs      *MemFS
	name    string
	data    *memFileData
	pos     int64
	created bool
	closed  bool
}

func (f *memFile) Read(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.pos >= int64(len(f.data.bytes)) {
		return 0, io.EOF
	}
	n := copy(p, f.data.bytes[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	end := f.pos + int64(len(p))
	if end > int64(len(f.data.bytes)) {
		grown := make([]byte, end)
		copy(grown, f.data.bytes)
		f.data.bytes = grown
	}
	n := copy(f.data.bytes[f.pos:end], p)
	f.pos += int64(n)
	f.data.modTime = time.Now()
	return n, nil
}

func (f *memFile) Seek(offset int64, whence ripfs.Whence) (int64, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	var base int64
	switch whence {
	case ripfs.SET:
		base = 0
	case ripfs.INCR:
		base = f.pos
	case ripfs.XTND:
		base = int64(len(f.data.bytes))
	}
	np := base + offset
	if np < 0 {
		return f.pos, ripfs.E(ripfs.InvalidArgument, "Seek", nil)
	}
	f.pos = np
	return np, nil
}

func (f *memFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if !f.closed {
		f.data.locked = false
		f.closed = true
	}
	return nil
}

func (f *memFile) Abort() error {
	f.fs.mu.Lock()
	created := f.created
	name := f.name
	f.fs.mu.Unlock()
	f.Close()
	if created {
		f.fs.mu.Lock()
		delete(f.fs.files, name)
		f.fs.mu.Unlock()
	}
	return nil
}

func (m *MemFS) Stat(name string) (ripfs.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.files[name]
	if !ok {
		return ripfs.Info{}, ripfs.E(ripfs.NotFound, "Stat", nil)
	}
	return ripfs.Info{Bytes: int64(len(d.bytes)), ModTime: d.modTime}, nil
}

func (m *MemFS) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return ripfs.E(ripfs.NotFound, "Delete", nil)
	}
	delete(m.files, name)
	return nil
}

func (m *MemFS) Rename(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.files[oldname]
	if !ok {
		return ripfs.E(ripfs.NotFound, "Rename", nil)
	}
	m.files[newname] = d
	delete(m.files, oldname)
	return nil
}

type memList struct {
	names []string
	pos   int
}

func (m *MemFS) StartList(pattern string) (ripfs.ListHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		if pattern == "*" || strings.Contains(name, strings.Trim(pattern, "*")) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return &memList{names: names}, nil
}

func (m *MemFS) Next(h ripfs.ListHandle) (string, bool, error) {
	l := h.(*memList)
	if l.pos >= len(l.names) {
		return "", false, nil
	}
	name := l.names[l.pos]
	l.pos++
	return name, true, nil
}

func (m *MemFS) EndList(h ripfs.ListHandle) error { return nil }

func (m *MemFS) Ioctl(opcode int, arg interface{}) error {
	return ripfs.E(ripfs.Unsupported, "Ioctl", nil)
}

func (m *MemFS) PreferredBufferSize() int { return 32 * 1024 }

func (m *MemFS) DeviceStatus() ripfs.DeviceStatus {
	return ripfs.DeviceStatus{FreeBytes: 1 << 30, TotalBytes: 1 << 30}
}
