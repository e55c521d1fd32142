package ziparchive

import (
	"sort"
	"sync"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// ZipFileBufferSize bounds how much is extracted per ensureExtracted
// step.
const ZipFileBufferSize = 32 * 1024

// LogicalFile is the union of every Piece sharing one stem name,
// backed by a single scratch file that accumulates extracted content
// lazily as reads/seeks demand it.
type LogicalFile struct {
	archive *Archive

	mu          sync.Mutex
	Name        string
	pieces      []*Piece
	sawLast     bool
	scratchName string
	scratchFile ripfs.File
	extracted   int64 // bytes of logical content extracted into the scratch file so far
	opens       int
	dirty       bool // true once any Write has touched the scratch file directly
}

func newLogicalFile(a *Archive, name string) *LogicalFile {
	return &LogicalFile{archive: a, Name: name}
}

func (lf *LogicalFile) addPiece(p *Piece) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.pieces = append(lf.pieces, p)
	sort.Slice(lf.pieces, func(i, j int) bool { return lf.pieces[i].Number < lf.pieces[j].Number })
	if p.Last {
		lf.sawLast = true
	}
}

// TotalSize returns the best known size of the logical file: its
// extracted byte count if that already covers every known piece,
// else the sum of piece uncompressed sizes (accurate once sawLast is
// true and no piece is still streaming an unknown size).
func (lf *LogicalFile) TotalSize() int64 {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	total := lf.totalUncompressedLocked()
	if lf.extracted >= total {
		return lf.extracted
	}
	return total
}

// totalUncompressed sums the uncompressed size of every piece seen so
// far; accurate only once sawLast is true for streamed/unknown-size
// pieces whose size is back-filled at extraction time.

func (lf *LogicalFile) totalUncompressed() int64 {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.totalUncompressedLocked()
}

func (lf *LogicalFile) totalUncompressedLocked() int64 {
	var total int64
	for _, p := range lf.pieces {
		total += int64(p.Uncompressed)
	}
	return total
}

func (lf *LogicalFile) ensureScratchLocked() error {
	if lf.scratchFile != nil {
		return nil
	}
	lf.scratchName = lf.archive.Names.Next()
	f, err := lf.archive.Scratch.Open(lf.scratchName, ripfs.RDWR|ripfs.CREATE|ripfs.EXCL)
	if err != nil {
		return ripfs.E(ripfs.IOError, "logicalfile.open", err)
	}
	lf.scratchFile = f
	return nil
}

// Open opens a handle onto the logical file: reads are always fine,
// even mid-extraction; writes require the file be non-archival or
// already fully extracted (APPEND forces that); EXCL fails while any
// other handle is open.
func (lf *LogicalFile) Open(flags ripfs.OpenFlag) (*FileHandle, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if flags&ripfs.EXCL != 0 && lf.opens > 0 {
		return nil, ripfs.E(ripfs.AccessDenied, "logicalfile.open", nil)
	}
	if err := lf.ensureScratchLocked(); err != nil {
		return nil, err
	}

	wantsWrite := flags&(ripfs.WRONLY|ripfs.RDWR) != 0
	hasArchiveBytes := len(lf.pieces) > 0
	if wantsWrite && hasArchiveBytes && flags&ripfs.APPEND != 0 {
		lf.mu.Unlock()
		err := lf.flush()
		lf.mu.Lock()
		if err != nil {
			return nil, err
		}
	}
	if wantsWrite && hasArchiveBytes && lf.extracted < lf.totalUncompressedLocked() {
		return nil, ripfs.E(ripfs.AccessDenied, "logicalfile.open", nil)
	}

	lf.opens++
	return &FileHandle{lf: lf}, nil
}

func (lf *LogicalFile) close(h *FileHandle) {
	lf.mu.Lock()
	lf.opens--
	lf.mu.Unlock()
}

// ensureExtracted guarantees at least `target` bytes of logical
// content are present in the scratch file, extracting additional
// pieces/chunks as needed.
func (lf *LogicalFile) ensureExtracted(target int64) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.ensureExtractedLocked(target)
}

func (lf *LogicalFile) ensureExtractedLocked(target int64) error {
	if err := lf.ensureScratchLocked(); err != nil {
		return err
	}
	for lf.extracted < target {
		piece, pieceBase, ok := lf.pieceForOffsetLocked(lf.extracted)
		if !ok {
			if !lf.sawLast && lf.archive.Mode == ModeStreamed {
				return ripfs.E(ripfs.IOError, "logicalfile.extract", nil)
			}
			return nil // nothing more to extract; short file.
		}
		chunk := target - lf.extracted
		if chunk > ZipFileBufferSize {
			chunk = ZipFileBufferSize
		}
		n, err := extractInto(lf.archive, piece, lf.extracted-pieceBase, chunk, lf.scratchFile, lf.extracted)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		lf.extracted += n
	}
	return nil
}

// pieceForOffsetLocked finds which piece covers logical offset off,
// and that piece's own starting offset within the logical stream.
func (lf *LogicalFile) pieceForOffsetLocked(off int64) (*Piece, int64, bool) {
	var base int64
	for _, p := range lf.pieces {
		end := base + int64(p.Uncompressed)
		if off < end || (off == base && p.Uncompressed == 0) {
			return p, base, true
		}
		base = end
	}
	return nil, 0, false
}

// flush forces extraction to completion: reads and discards remaining
// compressed bytes, still validating CRC if configured.
func (lf *LogicalFile) flush() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.ensureExtractedLocked(lf.totalUncompressedLocked())
}

// FileHandle is one open reference to a LogicalFile, tracking its own
// read/write cursor independent of other handles.
type FileHandle struct {
	lf  *LogicalFile
	pos int64
}

func (h *FileHandle) Read(p []byte) (int, error) {
	if err := h.lf.ensureExtracted(h.pos + int64(len(p))); err != nil {
		return 0, err
	}
	h.lf.mu.Lock()
	defer h.lf.mu.Unlock()
	if _, err := h.lf.scratchFile.Seek(h.pos, ripfs.SET); err != nil {
		return 0, ripfs.E(ripfs.IOError, "logicalfile.read", err)
	}
	n, err := h.lf.scratchFile.Read(p)
	h.pos += int64(n)
	return n, err
}

func (h *FileHandle) Write(p []byte) (int, error) {
	h.lf.mu.Lock()
	defer h.lf.mu.Unlock()
	if err := h.lf.ensureScratchLocked(); err != nil {
		return 0, err
	}
	if _, err := h.lf.scratchFile.Seek(h.pos, ripfs.SET); err != nil {
		return 0, ripfs.E(ripfs.IOError, "logicalfile.write", err)
	}
	n, err := h.lf.scratchFile.Write(p)
	h.pos += int64(n)
	h.lf.dirty = true
	if h.pos > h.lf.extracted {
		h.lf.extracted = h.pos
	}
	return n, err
}

// Seek resolves SET/INCR/XTND to an absolute target and, if it exceeds
// what's been extracted, extracts up to target+bufsize first.
func (h *FileHandle) Seek(offset int64, whence ripfs.Whence) (int64, error) {
	var target int64
	switch whence {
	case ripfs.SET:
		target = offset
	case ripfs.INCR:
		target = h.pos + offset
	case ripfs.XTND:
		if err := h.lf.flush(); err != nil {
			return 0, err
		}
		target = h.lf.totalUncompressed() + offset
	}
	if target < 0 {
		return 0, ripfs.E(ripfs.InvalidArgument, "logicalfile.seek", nil)
	}
	h.lf.mu.Lock()
	needExtract := target > h.lf.extracted
	h.lf.mu.Unlock()
	if needExtract {
		if err := h.lf.ensureExtracted(target + ZipFileBufferSize); err != nil {
			return 0, err
		}
	}
	h.pos = target
	return target, nil
}

func (h *FileHandle) Close() error {
	h.lf.close(h)
	return nil
}

// Abort tears the handle down without extracting further; the scratch
// file survives for other handles (it's only deleted on archive close
// or logical-file purge).
func (h *FileHandle) Abort() error {
	h.lf.close(h)
	return nil
}
