package zipfmt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestZip64ExtraRoundTrip(t *testing.T) {
	us, cs := uint64(1<<33), uint64(1<<34)
	extra := &Zip64Extra{UncompressedSize: &us, CompressedSize: &cs}
	buf := extra.Marshal()

	got, err := ParseZip64Extra(buf, true, true, false, false)
	if err != nil {
		t.Fatalf("ParseZip64Extra: %v", err)
	}
	if diff := cmp.Diff(extra, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestZip64ExtraSkipsOtherHeaders(t *testing.T) {
	us := uint64(42)
	extra := &Zip64Extra{UncompressedSize: &us}
	buf := extra.Marshal()
	// An unrelated extra-field record (e.g. NTFS timestamps) before ours.
	other := []byte{0x0a, 0x00, 0x04, 0x00, 1, 2, 3, 4}
	full := append(append([]byte(nil), other...), buf...)

	got, err := ParseZip64Extra(full, true, false, false, false)
	if err != nil {
		t.Fatalf("ParseZip64Extra: %v", err)
	}
	if got.UncompressedSize == nil || *got.UncompressedSize != 42 {
		t.Fatalf("got %+v, want UncompressedSize=42", got)
	}
}

func TestZip64ExtraMissing(t *testing.T) {
	if _, err := ParseZip64Extra(nil, true, false, false, false); err == nil {
		t.Fatal("expected error when zip64 extra field absent")
	}
}

func TestZip64EndOfCentralDirRoundTrip(t *testing.T) {
	e := &Zip64EndOfCentralDir{
		VersionMadeBy:   45,
		VersionNeeded:   45,
		EntriesThisDisk: 70000,
		EntriesTotal:    70000,
		CDirSize:        1 << 40,
		CDirOffset:      1 << 41,
	}
	buf := e.Marshal()
	got, err := ParseZip64EndOfCentralDir(buf)
	if err != nil {
		t.Fatalf("ParseZip64EndOfCentralDir: %v", err)
	}
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestZip64LocatorRoundTrip(t *testing.T) {
	l := &Zip64Locator{Zip64EndOffset: 1 << 42, TotalDisks: 1}
	buf := l.Marshal()
	got, err := ParseZip64Locator(buf)
	if err != nil {
		t.Fatalf("ParseZip64Locator: %v", err)
	}
	if diff := cmp.Diff(l, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
