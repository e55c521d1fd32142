package scratch

import (
	"bytes"
	"io"
	"testing"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

func TestMemFSOpenWithoutCreateFails(t *testing.T) {
	m := NewMemFS()
	if _, err := m.Open("missing", ripfs.RDONLY); err == nil {
		t.Fatal("expected NotFound opening a nonexistent file without CREATE")
	}
}

func TestMemFSWriteReadRoundTrip(t *testing.T) {
	m := NewMemFS()
	f, err := m.Open("a/b.txt", ripfs.RDWR|ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(0, ripfs.SET); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	f.Close()

	info, err := m.Stat("a/b.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Bytes != 5 {
		t.Fatalf("Stat.Bytes = %d, want 5", info.Bytes)
	}
}

func TestMemFSExclLocksConcurrentOpen(t *testing.T) {
	m := NewMemFS()
	f, err := m.Open("locked", ripfs.RDWR|ripfs.CREATE|ripfs.EXCL)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := m.Open("locked", ripfs.RDWR|ripfs.EXCL); err == nil {
		t.Fatal("expected AccessDenied on second exclusive open")
	}
	f.Close()
	if _, err := m.Open("locked", ripfs.RDWR|ripfs.EXCL); err != nil {
		t.Fatalf("Open after Close should succeed: %v", err)
	}
}

func TestMemFSTruncateClearsContent(t *testing.T) {
	m := NewMemFS()
	f, _ := m.Open("t", ripfs.RDWR|ripfs.CREATE)
	f.Write([]byte("old content"))
	f.Close()

	f2, err := m.Open("t", ripfs.RDWR|ripfs.TRUNCATE)
	if err != nil {
		t.Fatalf("Open with TRUNCATE: %v", err)
	}
	info, _ := m.Stat("t")
	if info.Bytes != 0 {
		t.Fatalf("Stat.Bytes after truncate = %d, want 0", info.Bytes)
	}
	f2.Close()
}

func TestMemFSDeleteAndRename(t *testing.T) {
	m := NewMemFS()
	f, _ := m.Open("orig", ripfs.RDWR|ripfs.CREATE)
	f.Write([]byte("x"))
	f.Close()

	if err := m.Rename("orig", "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := m.Stat("orig"); err == nil {
		t.Fatal("old name should no longer exist after rename")
	}
	if _, err := m.Stat("renamed"); err != nil {
		t.Fatalf("Stat(renamed): %v", err)
	}
	if err := m.Delete("renamed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete("renamed"); err == nil {
		t.Fatal("expected NotFound deleting an already-deleted file")
	}
}

func TestMemFSAbortRemovesCreatedFile(t *testing.T) {
	m := NewMemFS()
	f, err := m.Open("scratch-entry", ripfs.RDWR|ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	aborter, ok := f.(interface{ Abort() error })
	if !ok {
		t.Fatal("memFile does not implement Abort")
	}
	if err := aborter.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := m.Stat("scratch-entry"); err == nil {
		t.Fatal("file should be gone after Abort since it was freshly created")
	}
}

func TestMemFSStartListFiltersByPattern(t *testing.T) {
	m := NewMemFS()
	for _, name := range []string{"ZIP/0100001", "ZIP/0100002", "other"} {
		f, _ := m.Open(name, ripfs.RDWR|ripfs.CREATE)
		f.Close()
	}
	h, err := m.StartList("ZIP")
	if err != nil {
		t.Fatalf("StartList: %v", err)
	}
	var names []string
	for {
		name, ok, err := m.Next(h)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		names = append(names, name)
	}
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2: %v", len(names), names)
	}
}

func TestNameAllocatorProducesUniqueSequentialNames(t *testing.T) {
	a := NewNameAllocator(7)
	first := a.Next()
	second := a.Next()
	if first == second {
		t.Fatalf("expected distinct names, got %q twice", first)
	}
	if first != "ZIP/07000000" {
		t.Fatalf("got %q, want ZIP/07000000", first)
	}
	if second != "ZIP/07000001" {
		t.Fatalf("got %q, want ZIP/07000001", second)
	}
}
