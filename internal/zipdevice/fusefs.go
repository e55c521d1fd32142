package zipdevice

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

const rootInode = fuseops.RootInodeID

// FuseFS presents a mounted, read-only Device as a flat read-only
// FUSE filesystem: every logical file is a direct child of the mount
// root. It embeds fuseutil.NotImplementedFileSystem so every
// operation this device has no concept of (hard links, symlinks,
// xattrs, writes) answers ENOSYS instead of needing an explicit stub
// here, matching how a package-union filesystem only needs to
// implement the handful of ops its tree actually supports.
type FuseFS struct {
	fuseutil.NotImplementedFileSystem

	dev *Device

	mu      sync.Mutex
	names   []string // inode i (1-indexed from 2) -> logical file name
	byName  map[string]fuseops.InodeID
	handles map[fuseops.HandleID]*ziparchive_FileHandle
	nextHandle fuseops.HandleID
}

// ziparchive_FileHandle avoids an import cycle concern by naming the
// minimal surface FuseFS needs from an open logical file handle.
type ziparchive_FileHandle interface {
	Read([]byte) (int, error)
	Seek(int64, ripfs.Whence) (int64, error)
	Close() error
}

func NewFuseFS(dev *Device) *FuseFS {
	fs := &FuseFS{
		dev:     dev,
		byName:  make(map[string]fuseops.InodeID),
		handles: make(map[fuseops.HandleID]*ziparchive_FileHandle),
	}
	it := dev.StartList()
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		fs.names = append(fs.names, name)
		fs.byName[name] = fuseops.InodeID(len(fs.names) + 1) // inode 2, 3, ...
	}
	return fs
}

func (fs *FuseFS) nameForInode(id fuseops.InodeID) (string, bool) {
	idx := int(id) - 2
	if idx < 0 || idx >= len(fs.names) {
		return "", false
	}
	return fs.names[idx], true
}

func (fs *FuseFS) attrsFor(name string) fuseops.InodeAttributes {
	info, _ := fs.dev.Stat(name)
	return fuseops.InodeAttributes{
		Size:  uint64(info.Bytes),
		Nlink: 1,
		Mode:  0444,
		Mtime: time.Now(),
	}
}

func (fs *FuseFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

func (fs *FuseFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if op.Parent != rootInode {
		return syscall.ENOENT
	}
	fs.mu.Lock()
	id, ok := fs.byName[op.Name]
	fs.mu.Unlock()
	if !ok {
		return syscall.ENOENT
	}
	op.Entry = fuseops.ChildInodeEntry{
		Child:      id,
		Attributes: fs.attrsFor(op.Name),
	}
	return nil
}

func (fs *FuseFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	if op.Inode == rootInode {
		op.Attributes = fuseops.InodeAttributes{Nlink: 1, Mode: os.ModeDir | 0555}
		return nil
	}
	name, ok := fs.nameForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	op.Attributes = fs.attrsFor(name)
	return nil
}

func (fs *FuseFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if op.Inode != rootInode {
		return syscall.ENOENT
	}
	return nil
}

func (fs *FuseFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	names := append([]string(nil), fs.names...)
	fs.mu.Unlock()

	var n int
	offset := int(op.Offset)
	for i := offset; i < len(names); i++ {
		dirent := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(i + 2),
			Name:   names[i],
			Type:   fuseutil.DT_File,
		}
		written := fuseutil.WriteDirent(op.Dst[n:], dirent)
		if written == 0 {
			break
		}
		n += written
	}
	op.BytesRead = n
	return nil
}

func (fs *FuseFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	name, ok := fs.nameForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	h, err := fs.dev.Open(name, ripfs.RDONLY)
	if err != nil {
		return fuse.EIO
	}
	fs.mu.Lock()
	fs.nextHandle++
	id := fs.nextHandle
	var iface ziparchive_FileHandle = h
	fs.handles[id] = &iface
	fs.mu.Unlock()
	op.Handle = id
	return nil
}

func (fs *FuseFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	hp, ok := fs.handles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return syscall.EBADF
	}
	h := *hp
	if _, err := h.Seek(op.Offset, ripfs.SET); err != nil {
		return fuse.EIO
	}
	n, err := h.Read(op.Dst)
	op.BytesRead = n
	if err != nil && n == 0 {
		return nil // EOF: fuse expects a short/zero read, not an error
	}
	return nil
}

func (fs *FuseFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	hp, ok := fs.handles[op.Handle]
	delete(fs.handles, op.Handle)
	fs.mu.Unlock()
	if ok {
		(*hp).Close()
	}
	return nil
}
