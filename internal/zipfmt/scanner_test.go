package zipfmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestFindEndCDirSimple(t *testing.T) {
	eocd := &EndOfCentralDir{CDirSize: 10, CDirOffset: 20}
	data := append([]byte("some central directory bytes..."), eocd.Marshal()...)

	off, err := FindEndCDir(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("FindEndCDir: %v", err)
	}
	want := int64(len("some central directory bytes..."))
	if off != want {
		t.Fatalf("got offset %d, want %d", off, want)
	}
}

func TestFindEndCDirCrossingWindowBoundary(t *testing.T) {
	// Size the trailing comment so the first window boundary, scanWindow
	// bytes back from the end, falls two bytes into the EOCD signature,
	// exercising the 3-byte overlap carry.
	prefix := strings.Repeat("x", scanWindow-2)
	eocd := &EndOfCentralDir{Comment: strings.Repeat("c", scanWindow-20)}
	data := append([]byte(prefix), eocd.Marshal()...)

	off, err := FindEndCDir(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("FindEndCDir: %v", err)
	}
	if off != int64(len(prefix)) {
		t.Fatalf("got offset %d, want %d", off, len(prefix))
	}
}

func TestFindEndCDirNotFound(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 100)
	if _, err := FindEndCDir(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected error when no EOCD signature present")
	}
}

func TestNextSigFindsLocalFileHeader(t *testing.T) {
	lfh := &LocalFileHeader{Name: "f"}
	data := append([]byte("junk before it"), lfh.Marshal()...)

	sig, err := NextSig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NextSig: %v", err)
	}
	if sig != SigLocalFile {
		t.Fatalf("got %v, want SigLocalFile", sig)
	}
}

func TestNextSigRealignsOnFalseStart(t *testing.T) {
	// A 'P' that doesn't lead to a real signature, followed later by
	// one that does; NextSig must not get stuck on the false start.
	var buf bytes.Buffer
	buf.WriteString("P")
	buf.WriteString("XYZ")
	buf.Write((&CentralDirHeader{Name: "g"}).Marshal())

	sig, err := NextSig(&buf)
	if err != nil {
		t.Fatalf("NextSig: %v", err)
	}
	if sig != SigCentralDir {
		t.Fatalf("got %v, want SigCentralDir", sig)
	}
}

func TestNextSigEOF(t *testing.T) {
	if _, err := NextSig(bytes.NewReader([]byte("no signature here"))); err == nil {
		t.Fatal("expected EOF error")
	}
}
