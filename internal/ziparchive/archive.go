// Package ziparchive implements the ZIP archive reader/writer model:
// opening an archive seekable, streamed, or empty; grouping on-wire
// entries into logical files made of one or more pieces; and
// extracting/re-emitting their content on demand.
package ziparchive

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/zipfmt"
)

// maxConcurrentExtractions bounds how many logical files may pull
// bytes out of the scratch device at once: FlushAll fans every file's
// extraction out to its own goroutine, and an unbounded fan-out on a
// large archive would otherwise open that many scratch files and
// decompressor windows simultaneously.
const maxConcurrentExtractions = 8

// Mode selects how an Archive was opened.
type Mode int

const (
	ModeEmpty Mode = iota
	ModeSeekable
	ModeStreamed
)

// Archive owns every LogicalFile parsed (or being parsed) from one
// ZIP source, plus the scratch device extraction writes to.
type Archive struct {
	mu sync.Mutex

	Mode   Mode
	Source io.ReaderAt // nil in ModeStreamed/ModeEmpty
	Size   int64
	stream io.Reader // nil unless ModeStreamed

	Scratch ripfs.Device
	Names   scratchNameAllocator

	// extractSem bounds concurrent scratch-file extraction across every
	// logical file in this archive.
	extractSem *semaphore.Weighted

	// Complete is set once the central directory has been consumed
	// (always true immediately in ModeSeekable; set by next_file in
	// ModeStreamed once the central directory signature appears).
	Complete bool

	// files is insertion-ordered so filenameforall (Iterator) yields a
	// stable sequence even as streamed parsing discovers more entries.
	order []string
	files map[string]*LogicalFile

	CheckCRC32 bool
	IgnoreCase bool
	OpenPackage bool
}

type scratchNameAllocator interface {
	Next() string
}

// OpenSeekable reads the end-of-CDIR (and zip64 locator/end-of-CDIR if
// present) to enumerate every central directory entry up front.
// Directory entries (trailing '/' name, or an MSDOS/NTFS external
// attribute with the directory or volume bit) are skipped.
func OpenSeekable(src io.ReaderAt, size int64, scratch ripfs.Device, names scratchNameAllocator) (*Archive, error) {
	a := &Archive{
		Mode:       ModeSeekable,
		Source:     src,
		Size:       size,
		Scratch:    scratch,
		Names:      names,
		Complete:   true,
		files:      make(map[string]*LogicalFile),
		extractSem: semaphore.NewWeighted(maxConcurrentExtractions),
	}

	entries, err := readCentralDirectory(src, size)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if isDirectoryEntry(e) {
			continue
		}
		a.addEntry(e)
	}
	return a, nil
}

// OpenStreamed wraps a forward-only reader; entries are discovered
// lazily as NextFile is called.
func OpenStreamed(src io.Reader, scratch ripfs.Device, names scratchNameAllocator) *Archive {
	return &Archive{
		Mode:       ModeStreamed,
		stream:     src,
		Scratch:    scratch,
		Names:      names,
		files:      make(map[string]*LogicalFile),
		extractSem: semaphore.NewWeighted(maxConcurrentExtractions),
	}
}

// OpenEmpty returns a writable archive device with no entries.
func OpenEmpty(scratch ripfs.Device, names scratchNameAllocator) *Archive {
	return &Archive{
		Mode:       ModeEmpty,
		Scratch:    scratch,
		Names:      names,
		Complete:   true,
		files:      make(map[string]*LogicalFile),
		extractSem: semaphore.NewWeighted(maxConcurrentExtractions),
	}
}

func isDirectoryEntry(e *centralEntry) bool {
	if len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/' {
		return true
	}
	const msdosDir = 0x10
	const msdosVolume = 0x08
	madeByMSDOS := e.Header.VersionMadeBy>>8 == 0
	if madeByMSDOS && (e.Header.ExternalAttrs&(msdosDir|msdosVolume)) != 0 {
		return true
	}
	return false
}

// addEntry folds one on-wire entry into the logical file it belongs
// to, splitting by the XPS piece-name grammar when OpenPackage mode is
// on.
func (a *Archive) addEntry(e *centralEntry) {
	stem, piece, last := SplitPieceName(e.Name, a.OpenPackage)
	key := stem
	if a.IgnoreCase {
		key = lowerASCII(key)
	}
	lf, ok := a.files[key]
	if !ok {
		lf = newLogicalFile(a, stem)
		a.files[key] = lf
		a.order = append(a.order, key)
	}
	lf.addPiece(&Piece{
		Number:   piece,
		Last:     last,
		LFHOffset: int64(e.Header.LocalHeaderOffset),
		Method:    e.Header.Method,
		Flags:     e.Header.Flags,
		CRC32:     e.Header.CRC32,
		Compressed:   e.compressedSize,
		Uncompressed: e.uncompressedSize,
		fromArchive:  true,
	})
}

// Lookup finds a logical file by name (honoring IgnoreCase).
func (a *Archive) Lookup(name string) (*LogicalFile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := name
	if a.IgnoreCase {
		key = lowerASCII(key)
	}
	lf, ok := a.files[key]
	if !ok && a.IgnoreCase {
		// Entries parsed before IgnoreCase was set are keyed by their
		// original case.
		for k, f := range a.files {
			if lowerASCII(k) == key {
				return f, true
			}
		}
	}
	return lf, ok
}

// Iterator walks logical files in insertion order. An outstanding
// iterator whose current file is removed advances to the next; one
// already at the end of the chain picks up newly added files, since it
// simply re-reads a.order/a.files each Next call.
type Iterator struct {
	a   *Archive
	pos int
}

func (a *Archive) NewIterator() *Iterator {
	return &Iterator{a: a}
}

// NewFile creates a fresh, empty logical file on a writable archive.
func (a *Archive) NewFile(name string) *LogicalFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := name
	if a.IgnoreCase {
		key = lowerASCII(key)
	}
	if lf, ok := a.files[key]; ok {
		return lf
	}
	lf := newLogicalFile(a, name)
	lf.sawLast = true
	a.files[key] = lf
	a.order = append(a.order, key)
	return lf
}

// Remove drops a logical file from the archive, reporting whether it
// existed.
func (a *Archive) Remove(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := name
	if a.IgnoreCase {
		key = lowerASCII(key)
	}
	if _, ok := a.files[key]; !ok {
		return false
	}
	delete(a.files, key)
	return true
}

// FlushAll forces every logical file to extract to completion,
// consuming the rest of a streaming archive now. Each file's flush
// runs on its own goroutine; extractSem caps how many scratch files
// are being pulled from at once.
func (a *Archive) FlushAll() {
	a.mu.Lock()
	files := make([]*LogicalFile, 0, len(a.files))
	for _, lf := range a.files {
		files = append(files, lf)
	}
	a.mu.Unlock()

	g, _ := errgroup.WithContext(context.Background())
	for _, lf := range files {
		lf := lf
		g.Go(func() error {
			lf.flush()
			return nil
		})
	}
	g.Wait()
}

func (it *Iterator) Next() (*LogicalFile, bool) {
	it.a.mu.Lock()
	defer it.a.mu.Unlock()
	for it.pos < len(it.a.order) {
		key := it.a.order[it.pos]
		it.pos++
		if lf, ok := it.a.files[key]; ok {
			return lf, true
		}
	}
	return nil, false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// centralEntry is one parsed central directory record together with
// its zip64-resolved 64-bit sizes/offset.
type centralEntry struct {
	Header           *zipfmt.CentralDirHeader
	compressedSize   uint64
	uncompressedSize uint64
}

func readCentralDirectory(src io.ReaderAt, size int64) ([]*centralEntry, error) {
	eocdOff, err := zipfmtFindEndCDir(src, size)
	if err != nil {
		return nil, err
	}
	eocdBuf := make([]byte, size-eocdOff)
	if _, err := src.ReadAt(eocdBuf, eocdOff); err != nil && err != io.EOF {
		return nil, err
	}
	eocd, err := zipfmt.ParseEndOfCentralDir(eocdBuf)
	if err != nil {
		return nil, err
	}

	cdirOffset := int64(eocd.CDirOffset)
	cdirSize := int64(eocd.CDirSize)
	entryCount := int(eocd.EntriesTotal)

	if eocd.CDirOffset == zipfmt.Sentinel32 || eocd.EntriesTotal == zipfmt.Sentinel16 {
		locBuf := make([]byte, 20)
		locOff := eocdOff - 20
		if locOff >= 0 {
			if _, err := src.ReadAt(locBuf, locOff); err == nil {
				if loc, err := zipfmt.ParseZip64Locator(locBuf); err == nil {
					z64Buf := make([]byte, 56)
					if _, err := src.ReadAt(z64Buf, int64(loc.Zip64EndOffset)); err == nil {
						if z64, err := zipfmt.ParseZip64EndOfCentralDir(z64Buf); err == nil {
							cdirOffset = int64(z64.CDirOffset)
							cdirSize = int64(z64.CDirSize)
							entryCount = int(z64.EntriesTotal)
						}
					}
				}
			}
		}
	}

	cdirBuf := make([]byte, cdirSize)
	if _, err := src.ReadAt(cdirBuf, cdirOffset); err != nil && err != io.EOF {
		return nil, err
	}

	entries := make([]*centralEntry, 0, entryCount)
	pos := 0
	for pos < len(cdirBuf) {
		h, n, err := zipfmt.ParseCentralDirHeader(cdirBuf[pos:])
		if err != nil {
			break
		}
		pos += n
		ce := &centralEntry{Header: h, compressedSize: uint64(h.CompressedSize), uncompressedSize: uint64(h.UncompressedSize)}
		if h.CompressedSize == zipfmt.Sentinel32 || h.UncompressedSize == zipfmt.Sentinel32 || h.LocalHeaderOffset == zipfmt.Sentinel32 {
			if z64, err := zipfmt.ParseZip64Extra(h.Extra, h.UncompressedSize == zipfmt.Sentinel32, h.CompressedSize == zipfmt.Sentinel32, h.LocalHeaderOffset == zipfmt.Sentinel32, false); err == nil {
				if z64.UncompressedSize != nil {
					ce.uncompressedSize = *z64.UncompressedSize
				}
				if z64.CompressedSize != nil {
					ce.compressedSize = *z64.CompressedSize
				}
				if z64.LocalHeaderOffset != nil {
					h.LocalHeaderOffset = uint32(*z64.LocalHeaderOffset)
				}
			}
		}
		entries = append(entries, ce)
	}
	return entries, nil
}

func zipfmtFindEndCDir(src io.ReaderAt, size int64) (int64, error) {
	return zipfmt.FindEndCDir(src, size)
}
