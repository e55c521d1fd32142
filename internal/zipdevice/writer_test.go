package zipdevice

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/ziparchive"
)

func TestEmitArchiveRoundTripsThroughDisk(t *testing.T) {
	a := ziparchive.OpenEmpty(scratch.NewMemFS(), scratch.NewNameAllocator(1))
	contents := map[string][]byte{
		"readme.txt":     []byte("hello from the written archive"),
		"dir/nested.bin": bytes.Repeat([]byte{0x01, 0x02, 0x03}, 200),
	}
	for name, data := range contents {
		lf := a.NewFile(name)
		h, err := lf.Open(ripfs.RDWR | ripfs.CREATE)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		if _, err := h.Write(data); err != nil {
			t.Fatalf("Write(%q): %v", name, err)
		}
		h.Close()
	}

	out := filepath.Join(t.TempDir(), "archive.zip")
	if err := EmitArchive(out, a, false); err != nil {
		t.Fatalf("EmitArchive: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	reopened, err := ziparchive.OpenSeekable(bytes.NewReader(raw), int64(len(raw)), scratch.NewMemFS(), scratch.NewNameAllocator(2))
	if err != nil {
		t.Fatalf("OpenSeekable on written archive: %v", err)
	}
	for name, want := range contents {
		lf, ok := reopened.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) failed in re-read archive", name)
		}
		h, err := lf.Open(ripfs.RDONLY)
		if err != nil {
			t.Fatalf("Open(%q) in re-read archive: %v", name, err)
		}
		got := readAllHandle(t, h)
		h.Close()
		if !bytes.Equal(got, want) {
			t.Errorf("content of %q mismatched after round trip", name)
		}
	}
}

func TestEmitArchiveForcesZip64WhenRequested(t *testing.T) {
	a := ziparchive.OpenEmpty(scratch.NewMemFS(), scratch.NewNameAllocator(1))
	lf := a.NewFile("only.txt")
	h, err := lf.Open(ripfs.RDWR | ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Write([]byte("small"))
	h.Close()

	out := filepath.Join(t.TempDir(), "archive64.zip")
	if err := EmitArchive(out, a, true); err != nil {
		t.Fatalf("EmitArchive(zip64Files=true): %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	reopened, err := ziparchive.OpenSeekable(bytes.NewReader(raw), int64(len(raw)), scratch.NewMemFS(), scratch.NewNameAllocator(2))
	if err != nil {
		t.Fatalf("OpenSeekable: %v", err)
	}
	if _, ok := reopened.Lookup("only.txt"); !ok {
		t.Fatal("Lookup(only.txt) failed on zip64-forced archive")
	}
}

func readAllHandle(t *testing.T, h *ziparchive.FileHandle) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := h.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF || (n == 0 && err == nil) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	return out
}
