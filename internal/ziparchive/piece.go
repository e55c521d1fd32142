package ziparchive

import (
	"hash"
	"io"
	"strconv"
	"strings"
)

// Piece is one on-wire entry contributing bytes to a LogicalFile.
// Pieces are ordered by Number and concatenated to form the file's
// full content; Last marks the final piece of a file split across an
// XPS interleaved part sequence.
type Piece struct {
	Number int
	Last   bool

	LFHOffset    int64
	Method       uint16
	Flags        uint16
	CRC32        uint32
	Compressed   uint64
	Uncompressed uint64

	// fromArchive is true for pieces discovered by parsing an existing
	// archive (as opposed to ones staged by a writer that hasn't been
	// flushed to an archive yet).
	fromArchive bool

	extracted int64 // bytes of this piece's content already copied to scratch

	// Extraction reader state, lazily initialized on first read and
	// assumed to be consumed strictly sequentially (matching
	// ensureExtractedLocked's always-next-offset access pattern).
	dataOffset    int64
	decompressor  io.Reader
	crcHash       hash.Hash32
	sourceCloser  io.Closer
}

// SplitPieceName applies the XPS interleaved-part grammar: a name of
// the form "<stem>/[<n>].piece" is piece n of stem;
// "<stem>/[<n>].last.piece" is additionally the final piece. When
// openPackage is false every name is a single, final piece 0 of
// itself.
func SplitPieceName(name string, openPackage bool) (stem string, number int, last bool) {
	if !openPackage {
		return name, 0, true
	}
	const suffix = ".piece"
	if !strings.HasSuffix(name, suffix) {
		return name, 0, true
	}
	base := strings.TrimSuffix(name, suffix)
	isLast := strings.HasSuffix(base, ".last")
	if isLast {
		base = strings.TrimSuffix(base, ".last")
	}
	idx := strings.LastIndexByte(base, '[')
	if idx < 0 || !strings.HasSuffix(base, "]") {
		return name, 0, true
	}
	numStr := base[idx+1 : len(base)-1]
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return name, 0, true
	}
	stem = base[:idx]
	stem = strings.TrimSuffix(stem, "/")
	return stem, n, isLast
}
