package ziparchive

import (
	"bytes"
	"hash/crc32"
	"io"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/zipfmt"
)

// buildZip assembles a minimal, well-formed ZIP from a set of
// name->content entries, each stored (method 0) unless deflate names
// it, in which case it is deflated (method 8), for use as test
// fixtures without depending on the archive writer under test.
func buildZip(t *testing.T, entries map[string][]byte, deflate map[string]bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	type centralRec struct {
		name   string
		offset int64
		crc    uint32
		method uint16
		csize  uint32
		usize  uint32
	}
	var central []centralRec

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	// deterministic order for test readability
	sortStrings(names)

	for _, name := range names {
		content := entries[name]
		crc := crc32.ChecksumIEEE(content)
		method := uint16(zipfmt.MethodStore)
		payload := content
		if deflate[name] {
			method = zipfmt.MethodDeflate
			var cbuf bytes.Buffer
			fw, err := flate.NewWriter(&cbuf, flate.DefaultCompression)
			if err != nil {
				t.Fatalf("flate.NewWriter: %v", err)
			}
			if _, err := fw.Write(content); err != nil {
				t.Fatalf("flate write: %v", err)
			}
			if err := fw.Close(); err != nil {
				t.Fatalf("flate close: %v", err)
			}
			payload = cbuf.Bytes()
		}

		offset := int64(buf.Len())
		lfh := &zipfmt.LocalFileHeader{
			VersionNeeded:    20,
			Method:           method,
			CRC32:            crc,
			CompressedSize:   uint32(len(payload)),
			UncompressedSize: uint32(len(content)),
			Name:             name,
		}
		buf.Write(lfh.Marshal())
		buf.Write(payload)

		central = append(central, centralRec{
			name: name, offset: offset, crc: crc, method: method,
			csize: uint32(len(payload)), usize: uint32(len(content)),
		})
	}

	cdirStart := int64(buf.Len())
	for _, c := range central {
		ch := &zipfmt.CentralDirHeader{
			VersionMadeBy:     45,
			VersionNeeded:     20,
			Method:            c.method,
			CRC32:             c.crc,
			CompressedSize:    c.csize,
			UncompressedSize:  c.usize,
			LocalHeaderOffset: uint32(c.offset),
			Name:              c.name,
		}
		buf.Write(ch.Marshal())
	}
	cdirSize := int64(buf.Len()) - cdirStart

	eocd := &zipfmt.EndOfCentralDir{
		EntriesThisDisk: uint16(len(central)),
		EntriesTotal:    uint16(len(central)),
		CDirSize:        uint32(cdirSize),
		CDirOffset:      uint32(cdirStart),
	}
	buf.Write(eocd.Marshal())
	return buf.Bytes()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestOpenSeekableExtractsStoredAndDeflatedEntries(t *testing.T) {
	entries := map[string][]byte{
		"hello.txt": []byte("hello, world"),
		"deep/nested/file.bin": bytes.Repeat([]byte{0xAB, 0xCD}, 500),
	}
	data := buildZip(t, entries, map[string]bool{"deep/nested/file.bin": true})

	names := scratch.NewNameAllocator(1)
	mem := scratch.NewMemFS()
	a, err := OpenSeekable(bytes.NewReader(data), int64(len(data)), mem, names)
	if err != nil {
		t.Fatalf("OpenSeekable: %v", err)
	}
	a.CheckCRC32 = true

	for name, want := range entries {
		lf, ok := a.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q): not found", name)
		}
		h, err := lf.Open(ripfs.RDONLY)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		got, err := io.ReadAll(&fileHandleReader{h})
		if err != nil {
			t.Fatalf("read %q: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("content of %q = %q, want %q", name, got, want)
		}
		h.Close()
	}
}

// fileHandleReader adapts FileHandle.Read to io.Reader for io.ReadAll:
// the scratch file's io.EOF at the end is passed through, and a read
// of zero bytes with no error is reported as io.EOF too.
type fileHandleReader struct{ h *FileHandle }

func (r *fileHandleReader) Read(p []byte) (int, error) {
	n, err := r.h.Read(p)
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}

func TestIteratorInsertionOrder(t *testing.T) {
	entries := map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}
	data := buildZip(t, entries, nil)
	a, err := OpenSeekable(bytes.NewReader(data), int64(len(data)), scratch.NewMemFS(), scratch.NewNameAllocator(1))
	if err != nil {
		t.Fatalf("OpenSeekable: %v", err)
	}
	it := a.NewIterator()
	var seen []string
	for {
		lf, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, lf.Name)
	}
	if len(seen) != 3 {
		t.Fatalf("got %d files, want 3: %v", len(seen), seen)
	}
	for i, want := range []string{"a", "b", "c"} {
		if seen[i] != want {
			t.Errorf("file %d = %q, want %q (insertion order)", i, seen[i], want)
		}
	}
}

func TestLookupIgnoreCase(t *testing.T) {
	entries := map[string][]byte{"Mixed/Case.TXT": []byte("x")}
	data := buildZip(t, entries, nil)
	a, err := OpenSeekable(bytes.NewReader(data), int64(len(data)), scratch.NewMemFS(), scratch.NewNameAllocator(1))
	if err != nil {
		t.Fatalf("OpenSeekable: %v", err)
	}
	a.IgnoreCase = true
	if _, ok := a.Lookup("mixed/case.txt"); !ok {
		t.Fatal("case-insensitive lookup failed")
	}
}

func TestNewFileAndRemove(t *testing.T) {
	a := OpenEmpty(scratch.NewMemFS(), scratch.NewNameAllocator(1))
	lf := a.NewFile("created.txt")
	h, err := lf.Open(ripfs.RDWR | ripfs.CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := h.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.Close()

	if _, ok := a.Lookup("created.txt"); !ok {
		t.Fatal("expected created.txt to be findable")
	}
	if !a.Remove("created.txt") {
		t.Fatal("Remove reported not found")
	}
	if _, ok := a.Lookup("created.txt"); ok {
		t.Fatal("file still present after Remove")
	}
}
