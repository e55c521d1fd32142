package imagestore

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
)

// Blist is a reusable memory slab that may back a Block. The pool
// owns the backing slice; a Block holds a non-owning back-pointer that
// is zeroed under the store mutex before the pool reclaims the slab.
type Blist struct {
	Data     []byte
	Abytes   int
	Block    *Block
	Bx       int // column affinity, -1 if none
	Global   bool
	WasGlobal bool

	owner *Store
	next, prev *Blist // intrusive list links within whichever list currently owns it
}

func newBlist(abytes int) *Blist {
	return &Blist{Data: make([]byte, abytes), Abytes: abytes, Bx: -1}
}

// Pool is the process-wide (here: per Store-group) shared blist cache.
// Stores circulate slabs through it under memory pressure.
type Pool struct {
	mu   sync.Mutex
	free []*Blist // global list of slabs not currently owned by any block
	stores map[*Store]struct{}

	standardAbytes int
	maxBlists      int
	allocated      int // count of blists ever minted from this pool

	dev       ripfs.Device
	names     *scratch.NameAllocator
	imFileMu  sync.Mutex
	blockSized   *ImFile // one fixed-slot file for exactly-standard-size spills
	blockAligned *ImFile // spills that are a multiple of the standard size
	variable     *ImFile // everything else
}

// SetDevice wires the pool to the scratch filesystem that backs disk
// spills. Stores created against this pool before SetDevice is called
// can still run purely in memory; any attempt to spill to disk without
// a device configured fails with ripfs.Internal.
func (p *Pool) SetDevice(dev ripfs.Device, names *scratch.NameAllocator) {
	p.mu.Lock()
	p.dev = dev
	p.names = names
	p.mu.Unlock()
}

// imFileFor returns the ImFile bucket appropriate for a spill of the
// given size, using a three-bucket scheme: block-sized (exactly the
// pool's standard allocation), block-aligned (an exact multiple of
// it), and variable (everything else, e.g. post-compression spills).
// Each bucket is a single append-only scratch file shared by every
// store registered with this pool.
func (p *Pool) imFileFor(size int) (*ImFile, error) {
	p.imFileMu.Lock()
	defer p.imFileMu.Unlock()

	if p.dev == nil {
		return nil, ripfs.E(ripfs.Internal, "imfile", nil)
	}

	var slot **ImFile
	switch {
	case size == p.standardAbytes:
		slot = &p.blockSized
	case p.standardAbytes > 0 && size%p.standardAbytes == 0:
		slot = &p.blockAligned
	default:
		slot = &p.variable
	}
	if *slot == nil {
		f, err := newImFile(p.dev, p.names)
		if err != nil {
			return nil, err
		}
		*slot = f
	}
	return *slot, nil
}

// NewPool returns an empty pool whose "standard" slab size is
// standardAbytes (IM_BLOCK_DEFAULT_SIZE); maxBlists caps how many
// slabs the pool will hold onto before it starts refusing donations
// (a simple memory-pressure valve).
func NewPool(standardAbytes, maxBlists int) *Pool {
	return &Pool{
		standardAbytes: standardAbytes,
		maxBlists:      maxBlists,
		stores:         make(map[*Store]struct{}),
	}
}

func (p *Pool) register(s *Store) {
	p.mu.Lock()
	p.stores[s] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) unregister(s *Store) {
	p.mu.Lock()
	delete(p.stores, s)
	p.mu.Unlock()
}

// donateGlobal adds bl to the global free list, marking it available
// to any store. Called with no store mutex held.
func (p *Pool) donateGlobal(bl *Blist) {
	p.mu.Lock()
	bl.Global = true
	bl.WasGlobal = true
	bl.owner = nil
	bl.Block = nil
	if len(p.free) < p.maxBlists || p.maxBlists <= 0 {
		p.free = append(p.free, bl)
	}
	p.mu.Unlock()
}

// takeGlobal removes and returns a standard-size slab from the global
// pool, or nil if none is available.
func (p *Pool) takeGlobal(minSize int) *Blist {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, bl := range p.free {
		if bl.Abytes >= minSize {
			p.free = append(p.free[:i], p.free[i+1:]...)
			bl.Global = false
			return bl
		}
	}
	return nil
}

// findBlist locates a slab of at least size bytes for block bx in
// plane pl, in preference order: (1) unassigned in this plane for this
// column, (2) from any plane in this store, (3) the global pool
// (standard size match), (4) a fresh slab if the pool hasn't hit its
// budget, (5) in desperate mode, steal from another store.
func (s *Store) findBlist(size int, pl *Plane, bx int, desperate bool) (*Blist, error) {
	// (1) unassigned in this plane with matching column affinity.
	if bl := pl.takeUnassigned(bx, size); bl != nil {
		return bl, nil
	}
	// (2) from any plane in this store.
	for _, other := range s.planes {
		if other == nil || other == pl {
			continue
		}
		if bl := other.takeUnassigned(-1, size); bl != nil {
			bl.Bx = bx
			return bl, nil
		}
	}
	// (3) global pool, only for requests no larger than the standard
	// slab size.
	if size <= s.Pool.standardAbytes {
		if bl := s.Pool.takeGlobal(size); bl != nil {
			bl.Bx = bx
			bl.owner = s
			return bl, nil
		}
	}
	// (4) mint a new slab if the pool's budget allows it, rather than
	// treating "nothing free yet" as memory pressure.
	if bl := s.Pool.allocateFresh(size); bl != nil {
		bl.Bx = bx
		bl.owner = s
		return bl, nil
	}
	if !desperate {
		return nil, nil
	}
	// (5) desperate: steal from any other store by forcing a victim
	// block to compress or spill.
	if bl := s.Pool.steal(s, size); bl != nil {
		bl.Bx = bx
		bl.owner = s
		return bl, nil
	}
	return nil, nil
}

// allocateFresh mints a new slab of at least size bytes, as long as
// the pool hasn't already minted maxBlists of them (maxBlists<=0 means
// unbounded). Once the budget is spent, callers fall back to
// reclaiming/stealing an existing one instead of growing further.
func (p *Pool) allocateFresh(size int) *Blist {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxBlists > 0 && p.allocated >= p.maxBlists {
		return nil
	}
	abytes := size
	if p.standardAbytes > abytes {
		abytes = p.standardAbytes
	}
	p.allocated++
	return newBlist(abytes)
}

// maxConcurrentSteals bounds how many victim stores a desperate steal
// interrupts at once, so a single low-memory requester can't stall
// every other store in the pool simultaneously.
const maxConcurrentSteals = 4

// steal asks every other registered store to purge one block and hand
// back its freed slab, visiting up to maxConcurrentSteals stores
// concurrently. It is the "desperate" path and is deliberately
// best-effort: failure just means the caller falls back to
// OutOfMemory. If more than one victim yields a slab, every extra is
// donated back to the global pool rather than discarded.
func (p *Pool) steal(requester *Store, minSize int) *Blist {
	p.mu.Lock()
	victims := make([]*Store, 0, len(p.stores))
	for st := range p.stores {
		if st != requester {
			victims = append(victims, st)
		}
	}
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sem := semaphore.NewWeighted(maxConcurrentSteals)

	var mu sync.Mutex
	var found *Blist
	var wg sync.WaitGroup
	for _, victim := range victims {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context canceled: someone already found a slab
		}
		victim := victim
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			bl := victim.yieldOneBlist(minSize)
			if bl == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if found == nil {
				found = bl
				cancel()
				return
			}
			p.donateGlobal(bl)
		}()
	}
	wg.Wait()
	return found
}

// yieldOneBlist purges the first purgeable, memory-resident block it
// finds in this store and returns the slab that purge frees, or nil.
// purgeLocked always routes a successful purge through freeData, which
// donates the block's blist back to the plane's unassigned list rather
// than leaving it on b.Blist, so the freed slab has to be reclaimed
// from there by identity rather than read back off the block.
func (s *Store) yieldOneBlist(minSize int) *Blist {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pl := range s.planes {
		if pl == nil {
			continue
		}
		for _, b := range pl.blocks {
			if b == nil || !b.usableLocked() || b.Abytes < minSize {
				continue
			}
			freed := b.Blist
			n, err := b.purgeLocked(false)
			if err != nil || n == 0 {
				continue
			}
			if pl.removeUnassigned(freed) {
				return freed
			}
		}
	}
	return nil
}

// release puts bl back into circulation: if trimColumn, donate it to
// the global pool; otherwise just detach it from its block (the plane
// keeps it for reuse by the same column).
func (pl *Plane) release(bl *Blist, trimColumn bool) {
	bl.Block = nil
	if trimColumn {
		bl.Bx = -1
		pl.store.Pool.donateGlobal(bl)
		return
	}
	pl.addUnassigned(bl)
}
