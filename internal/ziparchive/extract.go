package ziparchive

import (
	"context"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/zipfmt"
)

// extractInto decompresses up to maxBytes of piece content starting at
// pieceRelOffset (assumed to equal the piece's running extracted
// count within its own logical file: extraction is strictly
// sequential per piece, one chunk at a time, though different pieces
// across different logical files may be extracting concurrently,
// bounded by a.extractSem) and writes it to dst at dstOffset. It
// covers both the store and flate codecs with one incremental reader
// per piece rather than separate code paths, since Go's io.Reader
// composition already gives the "read what's available, remember
// where you left off" behavior for free. Only pieces of a seekable
// archive, sized by the central directory, are extracted:
// ensureDecompressor rejects every piece of a streamed archive with
// Unsupported, so data-descriptor-sized entries are not read.
func extractInto(a *Archive, p *Piece, pieceRelOffset, maxBytes int64, dst ripfs.File, dstOffset int64) (int64, error) {
	if pieceRelOffset != p.extracted {
		return 0, ripfs.E(ripfs.Internal, "extract", nil)
	}
	if err := a.extractSem.Acquire(context.Background(), 1); err != nil {
		return 0, ripfs.E(ripfs.Internal, "extract", err)
	}
	defer a.extractSem.Release(1)
	if err := ensureDecompressor(a, p); err != nil {
		return 0, err
	}

	want := maxBytes
	if p.Uncompressed > 0 {
		if remaining := int64(p.Uncompressed) - p.extracted; remaining < want {
			want = remaining
		}
	}
	if want <= 0 {
		return finishPiece(a, p, dst, dstOffset)
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(p.decompressor, buf)
	if n > 0 {
		if p.crcHash != nil {
			p.crcHash.Write(buf[:n])
		}
		if _, werr := dst.Seek(dstOffset, ripfs.SET); werr != nil {
			return 0, ripfs.E(ripfs.IOError, "extract", werr)
		}
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return 0, ripfs.E(ripfs.IOError, "extract", werr)
		}
		p.extracted += int64(n)
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		if verr := verifyAndClose(a, p); verr != nil {
			return int64(n), verr
		}
		return int64(n), nil
	}
	if err != nil {
		return int64(n), ripfs.E(ripfs.IOError, "extract", err)
	}
	if p.Uncompressed > 0 && p.extracted >= int64(p.Uncompressed) {
		if verr := verifyAndClose(a, p); verr != nil {
			return int64(n), verr
		}
	}
	return int64(n), nil
}

func finishPiece(a *Archive, p *Piece, dst ripfs.File, dstOffset int64) (int64, error) {
	return 0, verifyAndClose(a, p)
}

func verifyAndClose(a *Archive, p *Piece) error {
	if a.CheckCRC32 && p.crcHash != nil {
		if p.crcHash.Sum32() != p.CRC32 {
			return ripfs.E(ripfs.CorruptArchive, "extract.crc", nil)
		}
	}
	if p.sourceCloser != nil {
		p.sourceCloser.Close()
		p.sourceCloser = nil
	}
	return nil
}

// ensureDecompressor lazily resolves the piece's local file header (to
// find its data offset) and wraps the archive source in whichever
// reader the piece's method needs, the first time any byte of it is
// requested.
func ensureDecompressor(a *Archive, p *Piece) error {
	if p.decompressor != nil {
		return nil
	}
	if a.Mode != ModeSeekable {
		return ripfs.E(ripfs.Unsupported, "extract", nil)
	}

	hdrBuf := make([]byte, 4096)
	n, err := a.Source.ReadAt(hdrBuf, p.LFHOffset)
	if err != nil && err != io.EOF {
		return ripfs.E(ripfs.IOError, "extract.header", err)
	}
	_, hdrLen, err := zipfmt.ParseLocalFileHeader(hdrBuf[:n])
	if err != nil {
		return ripfs.E(ripfs.CorruptArchive, "extract.header", err)
	}
	p.dataOffset = p.LFHOffset + int64(hdrLen)

	section := io.NewSectionReader(a.Source, p.dataOffset, int64(p.Compressed))
	p.crcHash = crc32.NewIEEE()

	switch p.Method {
	case zipfmt.MethodDeflate:
		fr := flate.NewReader(section)
		p.decompressor = fr
		p.sourceCloser = fr
	case zipfmt.MethodStore:
		p.decompressor = section
	default:
		return ripfs.E(ripfs.Unsupported, "extract", nil)
	}
	return nil
}
