package zipdevice

import (
	"testing"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
)

func newMountedDevice(t *testing.T) *Device {
	t.Helper()
	dev := New(scratch.NewMemFS(), 1)
	if err := dev.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return dev
}

func TestDeviceOpenCreateWriteStatDelete(t *testing.T) {
	dev := newMountedDevice(t)

	h, err := dev.Open("doc.txt", ripfs.RDWR|ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open(CREATE): %v", err)
	}
	if _, err := h.Write([]byte("contents")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.Close()

	info, err := dev.Stat("doc.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Bytes != 8 {
		t.Fatalf("Stat.Bytes = %d, want 8", info.Bytes)
	}

	if err := dev.Delete("doc.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := dev.Stat("doc.txt"); !ripfs.Is(err, ripfs.NotFound) {
		t.Fatalf("Stat after Delete = %v, want NotFound", err)
	}
}

func TestDeviceOpenWithoutCreateFailsOnMissingFile(t *testing.T) {
	dev := newMountedDevice(t)
	if _, err := dev.Open("nope.txt", ripfs.RDONLY); !ripfs.Is(err, ripfs.NotFound) {
		t.Fatalf("Open(missing) = %v, want NotFound", err)
	}
}

func TestDeviceReadOnlyRejectsWritesAndDeletes(t *testing.T) {
	dev := newMountedDevice(t)
	h, err := dev.Open("f.txt", ripfs.RDWR|ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open(CREATE): %v", err)
	}
	h.Write([]byte("x"))
	h.Close()

	if err := dev.SetParam("ReadOnly", true); err != nil {
		t.Fatalf("SetParam(ReadOnly): %v", err)
	}

	if _, err := dev.Open("f.txt", ripfs.RDWR); !ripfs.Is(err, ripfs.AccessDenied) {
		t.Fatalf("Open(RDWR) on read-only device = %v, want AccessDenied", err)
	}
	if _, err := dev.Open("f.txt", ripfs.RDONLY); err != nil {
		t.Fatalf("Open(RDONLY) on read-only device should still succeed: %v", err)
	}
	if err := dev.Delete("f.txt"); !ripfs.Is(err, ripfs.AccessDenied) {
		t.Fatalf("Delete on read-only device = %v, want AccessDenied", err)
	}
}

func TestDeviceStartListIteratesInsertionOrder(t *testing.T) {
	dev := newMountedDevice(t)
	for _, name := range []string{"a", "b", "c"} {
		h, err := dev.Open(name, ripfs.RDWR|ripfs.CREATE)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		h.Close()
	}

	it := dev.StartList()
	var got []string
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, name)
	}
	if len(got) != 3 {
		t.Fatalf("got %d names, want 3: %v", len(got), got)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i] != want {
			t.Errorf("name %d = %q, want %q (insertion order)", i, got[i], want)
		}
	}
}

func TestDeviceFlushAndCloseParams(t *testing.T) {
	dev := newMountedDevice(t)
	h, err := dev.Open("x", ripfs.RDWR|ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Write([]byte("data"))
	h.Close()

	if err := dev.SetParam("Flush", true); err != nil {
		t.Fatalf("SetParam(Flush): %v", err)
	}
	if err := dev.SetParam("Close", true); err != nil {
		t.Fatalf("SetParam(Close): %v", err)
	}

	// After Close, the archive is detached; Mount should build a fresh
	// empty one rather than reusing the torn-down archive.
	if err := dev.Mount(); err != nil {
		t.Fatalf("re-Mount after Close: %v", err)
	}
	if _, err := dev.Stat("x"); !ripfs.Is(err, ripfs.NotFound) {
		t.Fatalf("Stat after remount = %v, want NotFound (fresh empty archive)", err)
	}
}

