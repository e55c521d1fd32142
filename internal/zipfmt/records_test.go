package zipfmt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	h := &LocalFileHeader{
		VersionNeeded:    20,
		Flags:            FlagUTF8,
		Method:           MethodDeflate,
		CRC32:            0xdeadbeef,
		CompressedSize:   123,
		UncompressedSize: 456,
		Name:             "dir/file.txt",
		Extra:            []byte{0x01, 0x00, 0x04, 0x00, 1, 2, 3, 4},
	}
	buf := h.Marshal()

	got, n, err := ParseLocalFileHeader(buf)
	if err != nil {
		t.Fatalf("ParseLocalFileHeader: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalFileHeaderShort(t *testing.T) {
	if _, _, err := ParseLocalFileHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestCentralDirHeaderRoundTrip(t *testing.T) {
	h := &CentralDirHeader{
		VersionMadeBy:     45,
		VersionNeeded:     45,
		Method:            MethodDeflate,
		CRC32:             7,
		CompressedSize:    8,
		UncompressedSize:  9,
		LocalHeaderOffset: 1000,
		Name:              "a/b/c",
		Extra:             []byte{1, 2},
		Comment:           "hi",
	}
	buf := h.Marshal()
	got, n, err := ParseCentralDirHeader(buf)
	if err != nil {
		t.Fatalf("ParseCentralDirHeader: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	for _, hasSig := range []bool{false, true} {
		d := &DataDescriptor{HasSignature: hasSig, CRC32: 1, CompressedSize: 2, UncompressedSize: 3}
		buf := d.Marshal()
		got, n, err := ParseDataDescriptor(buf)
		if err != nil {
			t.Fatalf("ParseDataDescriptor(hasSig=%v): %v", hasSig, err)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d, want %d", n, len(buf))
		}
		if diff := cmp.Diff(d, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	e := &EndOfCentralDir{
		EntriesThisDisk: 3,
		EntriesTotal:    3,
		CDirSize:        100,
		CDirOffset:      200,
		Comment:         "archive comment",
	}
	buf := e.Marshal()
	got, err := ParseEndOfCentralDir(buf)
	if err != nil {
		t.Fatalf("ParseEndOfCentralDir: %v", err)
	}
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEndOfCentralDirBadSignature(t *testing.T) {
	buf := make([]byte, endOfCentralDirFixedSize)
	if _, err := ParseEndOfCentralDir(buf); err == nil {
		t.Fatal("expected error for zeroed buffer (wrong signature)")
	}
}
