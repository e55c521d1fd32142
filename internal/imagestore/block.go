package imagestore

import (
	"fmt"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// Block owns the state of one (plane, bx, by) tile.
type Block struct {
	plane  *Plane
	Bx, By int

	Storage     Storage
	Compression Compression
	Flags       BlockFlag
	Refcount    uint8

	Data  []byte // present iff Storage == StorageMemory
	Cdata []byte // compressed bytes, present iff Compression != None and not resident uncompressed
	Cbytes int

	File    *ImFile
	Foffset int64

	Xsize, Ysize   int // pixel dimensions (may be truncated on right/bottom edge)
	Xbytes, Ybytes int // stride per row, total row count worth of bytes
	Sbytes         int // bytes written so far this pass
	Rbytes         int // bytes required for a complete block (== Xbytes*Ysize)
	Tbytes         int // total allocation size in bytes (possibly padded, e.g. xyswap 1bpp rounding)
	Abytes         int // allocation size actually requested from the blist pool

	UniformColor uint16

	Blist *Blist
}

func newBlock(pl *Plane, bx, by int) *Block {
	s := pl.store
	xsize := edgeSize(bx, s.BlockWidth, s.OBBox.Width())
	ysize := edgeSize(by, s.BlockHeight, s.OBBox.Height())
	return &Block{plane: pl, Bx: bx, By: by, Xsize: xsize, Ysize: ysize}
}

func (b *Block) key() string { return fmt.Sprintf("%p", b) }

// xbytesFor computes the row stride in bytes for a block of pixel
// width xsize at bpp bits per pixel, and whether XYSWAP bpp<3 forces
// rounding the minor dimension up to a multiple of 8.
func xbytesFor(xsize, bpp int, xyswap bool) int {
	bits := xsize * bpp
	if xyswap && bpp < 3 {
		// round the minor (here: byte-packed) dimension up to a
		// multiple of 8 bits worth of samples.
		rem := xsize % 8
		if rem != 0 {
			bits = (xsize + (8 - rem)) * bpp
		}
	}
	return (bits + 7) / 8
}

// reserve allocates this block's data buffer. preAlloc, if non-nil,
// is used as the blist directly (e.g. a caller that already holds a
// spare slab); otherwise one is obtained from the pool, falling back
// to a purge-and-retry and then a desperate steal.
func (b *Block) reserve(preAlloc *Blist) error {
	s := b.plane.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return b.reserveLocked(preAlloc)
}

func (b *Block) reserveLocked(preAlloc *Blist) error {
	s := b.plane.store
	xyswap := s.Flags&XYSWAP != 0
	b.Xbytes = xbytesFor(b.Xsize, s.Bpp, xyswap)
	b.Ybytes = b.Xsize * s.Bpp / 8
	if b.Ybytes == 0 {
		b.Ybytes = 1
	}
	b.Rbytes = b.Xbytes * b.Ysize
	b.Tbytes = b.Rbytes
	b.Abytes = b.Tbytes
	if b.Abytes < s.Abytes {
		b.Abytes = s.Abytes // standard slabs are always at least this big
	}

	bl := preAlloc
	if bl == nil {
		var err error
		bl, err = s.findBlist(b.Abytes, b.plane, b.Bx, false)
		if err != nil {
			return err
		}
		if bl == nil && s.Flags&DESPERATE != 0 {
			bl, err = s.findBlist(b.Abytes, b.plane, b.Bx, true)
			if err != nil {
				return err
			}
		}
	}
	if bl == nil {
		if !s.desperate {
			s.desperate = true
			s.rowPurgeArmed = true
			s.purgeOneLocked()
			// retry once after a one-shot purge frees something up.
			var err error
			bl, err = s.findBlist(b.Abytes, b.plane, b.Bx, true)
			if err != nil {
				return err
			}
		}
	}
	if bl == nil {
		return ripfs.E(ripfs.OutOfMemory, "reserve", nil)
	}
	if bl.Abytes < b.Abytes {
		return ripfs.E(ripfs.Internal, "reserve", fmt.Errorf("blist too small: %d < %d", bl.Abytes, b.Abytes))
	}
	bl.Block = b
	b.Blist = bl
	b.Data = bl.Data[:0]
	b.Storage = StorageMemory
	b.Sbytes = 0
	if s.stdblocks == 0 && s.extblocks == 0 {
		// first block ever reserved in this store; nothing to count
		// beyond the increment below.
	}
	if b.Abytes == s.Abytes {
		s.stdblocks++
	} else {
		s.extblocks++
	}
	return nil
}

// writeRow appends buf to data+sbytes, byte-swapping 32bpp samples in
// place, and finalizes the block when the row set is complete.
func (b *Block) writeRow(buf []byte) error {
	s := b.plane.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Storage != StorageMemory {
		return ripfs.E(ripfs.Internal, "write_row", fmt.Errorf("block not reserved"))
	}
	if b.Sbytes+len(buf) > b.Tbytes {
		return ripfs.E(ripfs.InvalidArgument, "write_row", fmt.Errorf("row overflows block"))
	}
	b.Data = append(b.Data, buf...)
	if s.Bpp == 32 {
		swap32(b.Data[b.Sbytes:])
	}
	b.Sbytes += len(buf)

	if b.Sbytes >= b.Rbytes {
		b.Flags |= WriteComplete
		if s.Flags&XYSWAP != 0 {
			if err := b.xyswap(); err != nil {
				return err
			}
		}
		if s.Flags&RECYCLED == 0 {
			b.plane.updateRowRepeats(b.By, b.Data)
		}
		if s.rowPurgeArmed {
			s.purgeRowLocked(b.plane, b.By)
		}
	}
	return nil
}

// swap32 byte-swaps each 4-byte group in place (endian flip for
// 32-bit samples).
func swap32(p []byte) {
	for i := 0; i+4 <= len(p); i += 4 {
		p[i], p[i+1], p[i+2], p[i+3] = p[i+3], p[i+2], p[i+1], p[i]
	}
}

// moveableLocked reports whether the block must be reloaded before
// its address can be handed out.
func (b *Block) moveableLocked() bool {
	return b.Storage == StorageDisk ||
		b.Storage == StorageUniformVariant ||
		(b.Storage == StorageMemory && b.Compression != CompressionNone) ||
		b.Flags&NoLongerNeeded != 0
}

// usableLocked reports whether this block is eligible to donate its
// blist to another store: written, unreferenced, and memory-resident.
func (b *Block) usableLocked() bool {
	return b.Flags&WriteComplete != 0 && b.Refcount == 0 && b.Storage == StorageMemory
}

// ReadAddr returns a pointer to pixel (x,y) within this block's
// row-major buffer and the number of whole pixels remaining in that
// row from x onward. The caller must call Release when done to drop
// the reference this call takes.
func (b *Block) ReadAddr(x, y int) ([]byte, int, error) {
	s := b.plane.store
	s.mu.Lock()
	needReload := b.moveableLocked()
	s.mu.Unlock()

	if needReload {
		if err := b.reload(); err != nil {
			return nil, 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Storage == StorageUniformVariant {
		row := expandUniformRow(b.UniformColor, b.Xbytes, s.Bpp)
		b.Refcount++
		xbase := x * s.Bpp / 8
		return row[xbase:], b.Xsize - x, nil
	}

	ybase := y * b.Xbytes
	xbase := x * s.Bpp / 8
	if ybase+xbase > len(b.Data) {
		return nil, 0, ripfs.E(ripfs.Internal, "read_addr", fmt.Errorf("out of range"))
	}
	b.Refcount++
	return b.Data[ybase+xbase:], b.Xsize - x, nil
}

// Release drops the reference taken by ReadAddr.
func (b *Block) Release() {
	s := b.plane.store
	s.mu.Lock()
	if b.Refcount > 0 {
		b.Refcount--
	}
	if b.Refcount == 0 {
		s.getCond.Broadcast()
	}
	s.mu.Unlock()
}

func expandUniformRow(color uint16, xbytes, bpp int) []byte {
	row := make([]byte, xbytes)
	switch {
	case bpp == 16:
		for i := 0; i+1 < len(row); i += 2 {
			row[i] = byte(color >> 8)
			row[i+1] = byte(color)
		}
	default:
		c8 := byte(color)
		for i := range row {
			row[i] = c8
		}
	}
	return row
}
