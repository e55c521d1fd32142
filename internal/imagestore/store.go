package imagestore

import (
	"fmt"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// Write routes buf to the block covering (bx, by) in the given plane,
// reserving the block on first touch, and writes the row into it. bb
// is the plane index's caller-facing bounding box context carried
// alongside the call (unused here; per-block
// geometry is derived from the store's own obbox at reserve time).
func (s *Store) Write(planeIndex int, bb BBox, bx, by int, buf []byte) error {
	if planeIndex < 0 || planeIndex >= s.Nplanes {
		return ripfs.E(ripfs.InvalidArgument, "write", fmt.Errorf("plane %d out of range", planeIndex))
	}
	s.mu.Lock()
	pl := s.plane(planeIndex)
	b := pl.block(bx, by)
	needReserve := b.Storage == StorageNone
	s.mu.Unlock()

	if needReserve {
		if err := b.reserve(nil); err != nil {
			return err
		}
	}
	return b.writeRow(buf)
}

// Prealloc reserves a block's storage ahead of any Write call, for
// callers that want allocation failures reported before streaming
// pixel data.
func (s *Store) Prealloc(planeIndex, bx, by int) error {
	s.mu.Lock()
	pl := s.plane(planeIndex)
	b := pl.block(bx, by)
	s.mu.Unlock()
	return b.reserve(nil)
}

// Addr locates the block covering (x, y) in the given plane and
// returns a pointer into its row plus the count of whole pixels
// remaining in that row. Callers must call Release on the returned
// block once done.
func (s *Store) Addr(planeIndex, x, y int) ([]byte, int, *Block, error) {
	if planeIndex < 0 || planeIndex >= s.Nplanes {
		return nil, 0, nil, ripfs.E(ripfs.InvalidArgument, "addr", fmt.Errorf("plane %d out of range", planeIndex))
	}
	bx := x / s.BlockWidth
	by := y / s.BlockHeight
	s.mu.Lock()
	pl := s.plane(planeIndex)
	b := pl.block(bx, by)
	s.mu.Unlock()

	localX := x - bx*s.BlockWidth
	localY := y - by*s.BlockHeight
	data, remaining, err := b.ReadAddr(localX, localY)
	if err != nil {
		return nil, 0, nil, err
	}
	return data, remaining, b, nil
}

// TrimX releases every block in column bx across every plane,
// returning their blists to the global pool.
func (s *Store) TrimX(bx int) {
	s.mu.Lock()
	planes := append([]*Plane(nil), s.planes...)
	s.mu.Unlock()
	for _, pl := range planes {
		if pl != nil {
			pl.trimColumn(bx)
		}
	}
}

// TrimY releases every block in row by across every plane.
func (s *Store) TrimY(by int) {
	s.mu.Lock()
	planes := append([]*Plane(nil), s.planes...)
	s.mu.Unlock()
	for _, pl := range planes {
		if pl != nil {
			pl.trimRow(by)
		}
	}
}

// ClosePlane releases every block in the given plane and drops it
// from the store; use it once a plane will never be touched again.
func (s *Store) ClosePlane(planeIndex int) {
	s.mu.Lock()
	pl := s.planes[planeIndex]
	s.planes[planeIndex] = nil
	s.mu.Unlock()
	if pl == nil {
		return
	}
	for bx := 0; bx < s.Xblock; bx++ {
		pl.trimColumn(bx)
	}
}

// BytesAvailable reports how much more memory this store's pool could
// still hand it before steal/OutOfMemory territory: the sum of every
// unassigned blist belonging to the store's own planes plus the
// pool's global free list, measured in bytes (not an exact prediction
// of future allocation success, since a desperate steal can still
// succeed after this returns 0).
func (s *Store) BytesAvailable() int64 {
	s.mu.Lock()
	var total int64
	for _, pl := range s.planes {
		if pl == nil {
			continue
		}
		for _, bl := range pl.unassigned {
			total += int64(bl.Abytes)
		}
	}
	s.mu.Unlock()

	s.Pool.mu.Lock()
	for _, bl := range s.Pool.free {
		total += int64(bl.Abytes)
	}
	s.Pool.mu.Unlock()
	return total
}

// Stats is a point-in-time snapshot of a store's block accounting.
type Stats struct {
	StdBlocks, ExtBlocks int
	Desperate            bool
	Action               Action
}

func (s *Store) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		StdBlocks:  s.stdblocks,
		ExtBlocks:  s.extblocks,
		Desperate:  s.desperate,
		Action:     s.action,
	}
}
