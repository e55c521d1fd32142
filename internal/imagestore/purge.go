package imagestore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// purgeLocked attempts to reclaim a single block's memory. It must be
// called with the store mutex held and returns -1 on I/O failure, 1
// on successful reclaim, 0 when there was nothing to do. fromBlist
// indicates the caller is trying to reclaim this specific block's
// blist (vs. a general row sweep), which only affects whether a
// successful compression that still needs a blist donates it instead
// of keeping it.
func (b *Block) purgeLocked(fromBlist bool) (int, error) {
	if b.Storage != StorageMemory || b.Compression != CompressionNone {
		return 0, nil
	}
	if b.Refcount != 0 {
		return 0, nil
	}

	b.uniformCheckLocked(false)
	if b.Flags&IsUniform != 0 {
		b.freeData()
		b.Storage = StorageUniformVariant
		return 1, nil
	}

	s := b.plane.store
	if s.action == ActionCompression || s.action == ActionNone {
		if ok, err := b.tryCompress(); err != nil {
			return -1, err
		} else if ok {
			return 1, nil
		}
	}

	if s.action == ActionDisk || s.action == ActionCompression {
		if err := b.spillToDisk(); err != nil {
			return -1, err
		}
		return 1, nil
	}

	return 0, nil
}

// tryCompress attempts in-memory compression, choosing a codec tier
// by bpp: CCITT for 1bpp, B32 for 32bpp, LZW otherwise. All tiers are
// concretely implemented with flate (see compress.go); the size cap
// is tbytes*maxCompressionRatio.
func (b *Block) tryCompress() (bool, error) {
	s := b.plane.store
	tier := CompressionLZW
	switch {
	case s.Bpp == 1:
		tier = CompressionCCITT
	case s.Bpp == 32:
		tier = CompressionB32
	}

	out, err := compressBlock(b.Data)
	if err != nil {
		b.Compression = CompressionFailed
		return false, nil
	}
	limit := b.Tbytes * maxCompressionRatio
	if len(out) > limit || len(out) >= len(b.Data) {
		b.Compression = CompressionTooBig
		return false, nil
	}

	b.Cdata = out
	b.Cbytes = len(out)
	b.Compression = tier
	b.freeData()
	return true, nil
}

// spillToDisk writes the block (compressed if tryCompress already ran
// and filled Cdata, else raw) to one of the three ImFile buckets
// chosen by byte alignment.
func (b *Block) spillToDisk() error {
	s := b.plane.store
	payload := b.Data
	compression := CompressionCopy
	if b.Cdata != nil {
		payload = b.Cdata
		compression = b.Compression
	}
	f, err := s.Pool.imFileFor(len(payload))
	if err != nil {
		return ripfs.E(ripfs.IOError, "purge", err)
	}
	off, err := f.Append(payload)
	if err != nil {
		return ripfs.E(ripfs.IOError, "purge", err)
	}
	b.File = f
	b.Foffset = off
	b.Cbytes = len(payload)
	b.Compression = compression
	b.Storage = StorageDisk
	b.freeData()
	b.Cdata = nil
	return nil
}

// freeData releases the block's uncompressed slab, detaching and
// donating its blist back to the plane.
func (b *Block) freeData() {
	b.Data = nil
	if b.Blist != nil {
		bl := b.Blist
		b.Blist = nil
		bl.Block = nil
		b.plane.release(bl, false)
	}
}

// trim is a block's final disposal: frees data, demotes the blist (to
// the global pool if trimColumn, else detaches), frees cdata, marks
// NoLongerNeeded, clears storage.
func (b *Block) trim(trimColumn bool) {
	s := b.plane.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Blist != nil {
		bl := b.Blist
		b.Blist = nil
		bl.Block = nil
		b.plane.release(bl, trimColumn)
	}
	b.Data = nil
	b.Cdata = nil
	b.Storage = StorageNone
	b.Compression = CompressionNone
	b.Flags |= NoLongerNeeded
}

// uniformCheckLocked scans the block for a single repeated color,
// memoized via CheckedForUniform. It returns whether the check ran
// (false if the memoized result is simply being reused with nothing
// new to report — callers should inspect IsUniform either way).
//
// Known limitation, preserved deliberately: for 1/2/4 bpp data this
// does not special-case a trailing partial byte.
func (b *Block) uniformCheckLocked(freeData bool) bool {
	if b.Flags&CheckedForUniform != 0 {
		return false
	}
	b.Flags |= CheckedForUniform

	s := b.plane.store
	uniform := true
	var color uint16
	if s.Bpp == 16 {
		if len(b.Data) >= 2 {
			color = uint16(b.Data[0])<<8 | uint16(b.Data[1])
		}
		for i := 0; i+1 < len(b.Data); i += 2 {
			v := uint16(b.Data[i])<<8 | uint16(b.Data[i+1])
			if v != color {
				uniform = false
				break
			}
		}
	} else {
		if len(b.Data) > 0 {
			color = uint16(b.Data[0])
		}
		for _, v := range b.Data {
			if uint16(v) != color {
				uniform = false
				break
			}
		}
	}

	if uniform {
		b.Flags |= IsUniform
		b.UniformColor = color
		if freeData {
			b.freeData()
		}
	}
	return true
}

// purgeOneLocked does a one-shot purge of a single row, triggered the
// first time a store hits low memory during reserve. Must be called
// with s.mu held.
func (s *Store) purgeOneLocked() {
	for _, pl := range s.planes {
		if pl == nil {
			continue
		}
		for by := 0; by < s.Yblock; by++ {
			if s.purgeRowLocked(pl, by) > 0 {
				return
			}
		}
	}
}

// purgeRowLocked purges every WriteComplete, unreferenced,
// memory-resident block in row `by`, honoring XFLIP by choosing
// columns in reverse order. Individual blocks are purged concurrently
// via errgroup, since each touches only its own Block and the plane's
// unassigned-blist list (which synchronizes itself); the row's "done"
// counters only advance once the whole fan-out completes and no block
// in the row is still in progress (WriteComplete unset).
func (s *Store) purgeRowLocked(pl *Plane, by int) int {
	cols := make([]int, s.Xblock)
	for i := range cols {
		if s.Flags&XFLIP != 0 {
			cols[i] = s.Xblock - 1 - i
		} else {
			cols[i] = i
		}
	}

	var purged int32
	rowDone := true
	g, _ := errgroup.WithContext(context.Background())
	for _, bx := range cols {
		idx := pl.blockIndex(bx, by)
		b := pl.blocks[idx]
		if b == nil {
			continue
		}
		if b.Flags&WriteComplete == 0 {
			rowDone = false
			continue
		}
		if b.Refcount != 0 || b.Storage != StorageMemory {
			continue
		}
		b := b
		g.Go(func() error {
			n, err := b.purgeLocked(false)
			if err == nil && n > 0 {
				atomic.AddInt32(&purged, int32(n))
			}
			return nil
		})
	}
	g.Wait()
	if rowDone {
		if s.action == ActionDisk {
			pl.yPurged++
		} else {
			pl.yCompressed++
		}
	}
	return int(purged)
}
