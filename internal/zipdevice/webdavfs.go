package zipdevice

import (
	"context"
	"os"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// WebDAVFS presents a mounted, read-only Device as a webdav.FileSystem,
// so a mounted archive can be browsed over the network without a
// custom client.
type WebDAVFS struct {
	dev *Device
}

func NewWebDAVFS(dev *Device) *WebDAVFS { return &WebDAVFS{dev: dev} }

func (fs *WebDAVFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return ripfs.E(ripfs.AccessDenied, "webdav.mkdir", nil)
}

func (fs *WebDAVFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	name = strings.TrimPrefix(name, "/")
	h, err := fs.dev.Open(name, ripfs.RDONLY)
	if err != nil {
		return nil, err
	}
	info, _ := fs.dev.Stat(name)
	return &webdavFile{h: h, name: name, size: info.Bytes}, nil
}

func (fs *WebDAVFS) RemoveAll(ctx context.Context, name string) error {
	return ripfs.E(ripfs.AccessDenied, "webdav.remove", nil)
}

func (fs *WebDAVFS) Rename(ctx context.Context, oldName, newName string) error {
	return ripfs.E(ripfs.AccessDenied, "webdav.rename", nil)
}

func (fs *WebDAVFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = strings.TrimPrefix(name, "/")
	info, err := fs.dev.Stat(name)
	if err != nil {
		return nil, err
	}
	return &webdavInfo{name: name, size: info.Bytes}, nil
}

type webdavInfo struct {
	name string
	size int64
}

func (i *webdavInfo) Name() string       { return i.name }
func (i *webdavInfo) Size() int64        { return i.size }
func (i *webdavInfo) Mode() os.FileMode  { return 0444 }
func (i *webdavInfo) ModTime() time.Time { return time.Time{} }
func (i *webdavInfo) IsDir() bool        { return false }
func (i *webdavInfo) Sys() interface{}   { return nil }

// webdavFile adapts a ziparchive.FileHandle (our Read/Seek/Close
// surface) to webdav.File, which additionally wants Readdir and Stat.
// Directory listing isn't meaningful over a flat archive namespace, so
// Readdir always reports an empty directory rather than erroring.
type webdavFile struct {
	h    interface {
		Read([]byte) (int, error)
		Seek(int64, ripfs.Whence) (int64, error)
		Close() error
	}
	name string
	size int64
}

func (f *webdavFile) Read(p []byte) (int, error) { return f.h.Read(p) }
func (f *webdavFile) Write(p []byte) (int, error) {
	return 0, ripfs.E(ripfs.AccessDenied, "webdav.write", nil)
}
func (f *webdavFile) Seek(offset int64, whence int) (int64, error) {
	var w ripfs.Whence
	switch whence {
	case 1:
		w = ripfs.INCR
	case 2:
		w = ripfs.XTND
	default:
		w = ripfs.SET
	}
	return f.h.Seek(offset, w)
}
func (f *webdavFile) Close() error { return f.h.Close() }
func (f *webdavFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, nil
}
func (f *webdavFile) Stat() (os.FileInfo, error) {
	return &webdavInfo{name: f.name, size: f.size}, nil
}
