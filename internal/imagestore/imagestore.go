// Package imagestore implements a tiled image block store: a
// per-plane, per-block cache over a 2-D grid of fixed-size blocks,
// with multiple storage tiers (resident memory, compressed memory,
// spill-to-disk, uniform-color variant, trimmed), a shared pool of
// reusable memory slabs, and a purge state machine.
//
// A *Store owns a mutex and two condition variables (loadCond,
// getCond) guarding every block's flags, refcount, data pointer and
// storage state. The only blocking wait is for a concurrent reload of
// the same block to finish (loadCond). getCond is broadcast whenever a
// block's memory is released, but nothing waits on it: an allocation
// that finds no memory fails with OutOfMemory at once.
package imagestore

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sanjeekswipro/ripstore/internal/interrupt"
	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// Action selects a store's preferred purge direction.
type Action int

const (
	ActionNone Action = iota
	ActionCompression
	ActionDisk
)

// Flag bits for a Store.
type Flag uint32

const (
	XYSWAP Flag = 1 << iota
	XFLIP
	DESPERATE
	DOWNSAMPLED
	ROWREPEATS_NEAR
	RECYCLED
)

// BBox is an integer bounding box, inclusive on both ends.
type BBox struct {
	X0, Y0, X1, Y1 int
}

func (b BBox) Width() int  { return b.X1 - b.X0 + 1 }
func (b BBox) Height() int { return b.Y1 - b.Y0 + 1 }

// smallStoreBlockThreshold is the stdblocks+extblocks count below
// which a store is never allowed to spill to disk: tiny stores aren't
// worth a spill file's fixed overhead, so their action is clamped to
// ActionCompression even if the caller asked for disk.
const smallStoreBlockThreshold = 4

// Store is one ImageStore: a 2-D grid of Blocks replicated across
// nplanes color planes.
type Store struct {
	OBBox       BBox
	Bpp         int // bits per pixel
	Bpps        int // log2(bits per sample)
	BlockWidth  int
	BlockHeight int
	Xblock      int // blocks across
	Yblock      int // blocks down
	Nplanes     int
	Abytes      int // default block allocation size
	Flags       Flag
	RowRepeatsNear bool

	Pool *Pool

	mu       sync.Mutex
	loadCond *sync.Cond
	getCond  *sync.Cond
	interrupt *interrupt.Flag

	action     Action
	stdblocks  int
	extblocks  int
	desperate  bool // sticky once hit the first low-memory condition

	planes []*Plane

	// loadGroup collapses concurrent reload() calls for the same
	// block into a single load: every caller racing an address lookup
	// on a block that is IsLoading shares the one in-flight fetch's
	// result instead of each re-running the I/O + decompress path.
	loadGroup singleflight.Group

	// rowPurgeArmed records that a store hit low memory once and
	// should re-purge a row on every subsequent row completion.
	rowPurgeArmed bool
}

// New creates a store over obbox partitioned into xblock x yblock
// blocks of blockWidth x blockHeight pixels, replicated across
// nplanes planes, backed by the shared pool.
func New(obbox BBox, bpp, bpps, blockWidth, blockHeight, nplanes int, pool *Pool, flags Flag) *Store {
	xblock := (obbox.Width() + blockWidth - 1) / blockWidth
	yblock := (obbox.Height() + blockHeight - 1) / blockHeight
	s := &Store{
		OBBox:       obbox,
		Bpp:         bpp,
		Bpps:        bpps,
		BlockWidth:  blockWidth,
		BlockHeight: blockHeight,
		Xblock:      xblock,
		Yblock:      yblock,
		Nplanes:     nplanes,
		Abytes:      blockWidth * blockHeight * bpp / 8,
		Flags:       flags,
		Pool:        pool,
		interrupt:   interrupt.New(),
		planes:      make([]*Plane, nplanes),
	}
	s.loadCond = sync.NewCond(&s.mu)
	s.getCond = sync.NewCond(&s.mu)
	s.RowRepeatsNear = flags&ROWREPEATS_NEAR != 0
	pool.register(s)
	return s
}

// Close unregisters the store from its pool so later desperate steals
// on other stores stop considering it a victim. It does not purge or
// release any blocks still resident; callers that need a clean
// teardown should trim every plane first.
func (s *Store) Close() error {
	s.Pool.unregister(s)
	return nil
}

// SetAction sets the store's preferred purge direction, clamped so
// that small stores can never spill to disk.
func (s *Store) SetAction(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == ActionDisk && s.stdblocks+s.extblocks < smallStoreBlockThreshold {
		a = ActionCompression
	}
	s.action = a
}

func (s *Store) Action() Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.action
}

// Interrupt returns the flag waiters in this store's reload path
// select against for cancellation.
func (s *Store) Interrupt() *interrupt.Flag { return s.interrupt }

// plane lazily creates plane i's block grid on first touch.
func (s *Store) plane(i int) *Plane {
	if s.planes[i] == nil {
		s.planes[i] = newPlane(s, i)
	}
	return s.planes[i]
}

// edgeSize returns the pixel width/height of the block at column/row
// index bx/by along axis dimension `full` blocks of size `blockSize`
// covering `totalPixels` total — edge blocks on the right/bottom may
// be shorter.
func edgeSize(index, blockSize, totalPixels int) int {
	start := index * blockSize
	remaining := totalPixels - start
	if remaining < blockSize {
		return remaining
	}
	return blockSize
}

// scratchDevice is satisfied by ripfs.Device; kept as a local alias so
// imagestore files don't need to import ripfs everywhere just for the
// type name.
type scratchDevice = ripfs.Device
