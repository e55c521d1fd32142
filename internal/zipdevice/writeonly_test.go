package zipdevice

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/ziparchive"
)

func TestWriteonlyDeviceRejectsSecondConcurrentOpen(t *testing.T) {
	w := NewWriteonly(scratch.NewMemFS(), 1)

	h1, err := w.OpenNext("first.txt")
	if err != nil {
		t.Fatalf("OpenNext(first): %v", err)
	}
	if _, err := w.OpenNext("second.txt"); !ripfs.Is(err, ripfs.AccessDenied) {
		t.Fatalf("OpenNext while one is active = %v, want AccessDenied", err)
	}
	if err := w.CloseActive(h1); err != nil {
		t.Fatalf("CloseActive: %v", err)
	}
	if _, err := w.OpenNext("second.txt"); err != nil {
		t.Fatalf("OpenNext after CloseActive: %v", err)
	}
}

func TestWriteonlyDeviceCloseFileBlocksFurtherWrites(t *testing.T) {
	w := NewWriteonly(scratch.NewMemFS(), 1)
	w.CloseFile()
	if _, err := w.OpenNext("anything.txt"); !ripfs.Is(err, ripfs.IOError) {
		t.Fatalf("OpenNext after CloseFile = %v, want IOError", err)
	}
}

func TestWriteonlyDeviceFinalizeEmitsReadableArchive(t *testing.T) {
	w := NewWriteonly(scratch.NewMemFS(), 1)

	h, err := w.OpenNext("packed.txt")
	if err != nil {
		t.Fatalf("OpenNext: %v", err)
	}
	if _, err := h.Write([]byte("packed content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.CloseActive(h); err != nil {
		t.Fatalf("CloseActive: %v", err)
	}

	out := filepath.Join(t.TempDir(), "packed.zip")
	if err := w.Finalize(out); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	a, err := ziparchive.OpenSeekable(bytes.NewReader(raw), int64(len(raw)), scratch.NewMemFS(), scratch.NewNameAllocator(2))
	if err != nil {
		t.Fatalf("OpenSeekable: %v", err)
	}
	lf, ok := a.Lookup("packed.txt")
	if !ok {
		t.Fatal("Lookup(packed.txt) failed in finalized archive")
	}
	rh, err := lf.Open(ripfs.RDONLY)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rh.Close()
	got := readAllHandle(t, rh)
	if !bytes.Equal(got, []byte("packed content")) {
		t.Fatalf("content = %q, want %q", got, "packed content")
	}
}
