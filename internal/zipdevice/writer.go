package zipdevice

import (
	"bufio"
	"context"
	"hash/crc32"
	"io"

	"github.com/google/renameio"
	"github.com/klauspost/compress/flate"
	"github.com/orcaman/writerseeker"
	"golang.org/x/sync/errgroup"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/zipfmt"
	"github.com/sanjeekswipro/ripstore/internal/ziparchive"
)

// EmitArchive iterates every logical file on a Complete, writable
// device in insertion order and serializes a new archive to path.
// Every file is read back in full and re-deflated into a staging
// buffer before its header is written, rather than copying already-
// DEFLATEd bytes verbatim for untouched entries — simpler, at the
// cost of always paying a compression pass.
//
// The deflate pass for each entry runs on its own goroutine
// (errgroup), since it only reads from the logical file and writes to
// its own staging buffer; the sequential cost — writing headers,
// compressed bytes, and the central directory to the destination file
// in order — still happens on the calling goroutine once every
// deflate has finished, since local header offsets depend on what was
// written before them.
//
// The destination is written via renameio so a reader never observes
// a partially-written archive at path.
func EmitArchive(path string, a *ziparchive.Archive, zip64Files bool) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return ripfs.E(ripfs.IOError, "writer.create", err)
	}
	defer t.Cleanup()

	var files []*ziparchive.LogicalFile
	it := a.NewIterator()
	for {
		lf, ok := it.Next()
		if !ok {
			break
		}
		files = append(files, lf)
	}

	staged := make([]*stagedEntry, len(files))
	g, _ := errgroup.WithContext(context.Background())
	for i, lf := range files {
		i, lf := i, lf
		g.Go(func() error {
			se, err := deflateEntry(lf, zip64Files)
			if err != nil {
				return err
			}
			staged[i] = se
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cw := &countingWriter{w: bufio.NewWriter(t)}
	var central [][]byte
	var cdirSize int64

	for _, se := range staged {
		offset := cw.n
		ch, err := writeStagedEntry(cw, se)
		if err != nil {
			return err
		}
		ch.LocalHeaderOffset = uint32(offset)
		if offset > int64(zipfmt.Sentinel32) {
			var off64 = uint64(offset)
			ch.Extra = (&zipfmt.Zip64Extra{LocalHeaderOffset: &off64}).Marshal()
			ch.LocalHeaderOffset = zipfmt.Sentinel32
		}
		rec := ch.Marshal()
		central = append(central, rec)
		cdirSize += int64(len(rec))
	}

	cdirOffset := cw.n
	for _, rec := range central {
		if _, err := cw.Write(rec); err != nil {
			return ripfs.E(ripfs.IOError, "writer.cdir", err)
		}
	}

	needZip64 := zip64Files || len(central) > 0xFFFF || cdirSize > int64(zipfmt.Sentinel32) || cdirOffset > int64(zipfmt.Sentinel32)
	if needZip64 {
		zip64EndOffset := cw.n
		z64 := &zipfmt.Zip64EndOfCentralDir{
			VersionMadeBy:   45,
			VersionNeeded:   45,
			EntriesThisDisk: uint64(len(central)),
			EntriesTotal:    uint64(len(central)),
			CDirSize:        uint64(cdirSize),
			CDirOffset:      uint64(cdirOffset),
		}
		if _, err := cw.Write(z64.Marshal()); err != nil {
			return ripfs.E(ripfs.IOError, "writer.zip64end", err)
		}
		loc := &zipfmt.Zip64Locator{Zip64EndOffset: uint64(zip64EndOffset), TotalDisks: 1}
		if _, err := cw.Write(loc.Marshal()); err != nil {
			return ripfs.E(ripfs.IOError, "writer.zip64loc", err)
		}
	}

	entries := len(central)
	eocd := &zipfmt.EndOfCentralDir{
		CDirSize:   uint32(clampU32(cdirSize)),
		CDirOffset: uint32(clampU32(cdirOffset)),
	}
	if needZip64 {
		eocd.EntriesThisDisk = zipfmt.Sentinel16
		eocd.EntriesTotal = zipfmt.Sentinel16
		eocd.CDirSize = zipfmt.Sentinel32
		eocd.CDirOffset = zipfmt.Sentinel32
	} else {
		eocd.EntriesThisDisk = uint16(entries)
		eocd.EntriesTotal = uint16(entries)
	}
	if _, err := cw.Write(eocd.Marshal()); err != nil {
		return ripfs.E(ripfs.IOError, "writer.eocd", err)
	}

	if err := cw.w.(*bufio.Writer).Flush(); err != nil {
		return ripfs.E(ripfs.IOError, "writer.flush", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return ripfs.E(ripfs.IOError, "writer.replace", err)
	}
	return nil
}

func clampU32(v int64) int64 {
	if v > int64(zipfmt.Sentinel32) {
		return int64(zipfmt.Sentinel32)
	}
	return v
}

// stagedEntry is one logical file's fully-deflated content, ready to
// be written to the destination in order once every entry's deflate
// pass has completed.
type stagedEntry struct {
	lfh        *zipfmt.LocalFileHeader
	compressed []byte
}

// deflateEntry reads lf's full content and deflates it into a staging
// buffer (orcaman/writerseeker, since the in-memory buffer need not
// ever be written to a real file). It touches nothing but lf and its
// own buffer, so callers may run it concurrently across entries.
func deflateEntry(lf *ziparchive.LogicalFile, zip64Files bool) (*stagedEntry, error) {
	h, err := lf.Open(ripfs.RDONLY)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	var staging writerseeker.WriterSeeker
	crc := crc32.NewIEEE()
	fw, err := flate.NewWriter(&staging, flate.DefaultCompression)
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "writer.deflate", err)
	}

	buf := make([]byte, 32*1024)
	var uncompressed int64
	for {
		n, rerr := h.Read(buf)
		if n > 0 {
			crc.Write(buf[:n])
			if _, werr := fw.Write(buf[:n]); werr != nil {
				return nil, ripfs.E(ripfs.IOError, "writer.deflate", werr)
			}
			uncompressed += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, ripfs.E(ripfs.IOError, "writer.read", rerr)
		}
	}
	if err := fw.Close(); err != nil {
		return nil, ripfs.E(ripfs.IOError, "writer.deflate", err)
	}

	compressedReader := staging.Reader()
	compressed, err := io.ReadAll(compressedReader)
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "writer.stage", err)
	}

	lfh := &zipfmt.LocalFileHeader{
		VersionNeeded:    45,
		Method:           zipfmt.MethodDeflate,
		CRC32:            crc.Sum32(),
		CompressedSize:   uint32(clampU32(int64(len(compressed)))),
		UncompressedSize: uint32(clampU32(uncompressed)),
		Name:             lf.Name,
	}
	needZip64 := zip64Files || int64(len(compressed)) > int64(zipfmt.Sentinel32) || uncompressed > int64(zipfmt.Sentinel32)
	if needZip64 {
		cs, us := uint64(len(compressed)), uint64(uncompressed)
		lfh.Extra = (&zipfmt.Zip64Extra{UncompressedSize: &us, CompressedSize: &cs}).Marshal()
		lfh.CompressedSize = zipfmt.Sentinel32
		lfh.UncompressedSize = zipfmt.Sentinel32
	}

	return &stagedEntry{lfh: lfh, compressed: compressed}, nil
}

// writeStagedEntry writes a deflated entry's local file header and
// compressed bytes to w, returning the central directory record that
// should follow it.
func writeStagedEntry(w io.Writer, se *stagedEntry) (*zipfmt.CentralDirHeader, error) {
	if _, err := w.Write(se.lfh.Marshal()); err != nil {
		return nil, ripfs.E(ripfs.IOError, "writer.lfh", err)
	}
	if _, err := w.Write(se.compressed); err != nil {
		return nil, ripfs.E(ripfs.IOError, "writer.data", err)
	}

	return &zipfmt.CentralDirHeader{
		VersionMadeBy:    45,
		VersionNeeded:    45,
		Method:           zipfmt.MethodDeflate,
		CRC32:            se.lfh.CRC32,
		CompressedSize:   se.lfh.CompressedSize,
		UncompressedSize: se.lfh.UncompressedSize,
		Name:             se.lfh.Name,
		Extra:            se.lfh.Extra,
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
