package scratch

import (
	"fmt"
	"sync/atomic"
)

// NameAllocator hands out globally-unique scratch names for one
// mounted archive: "ZIP/" + hex2(device id) + hex6(file sequence).
// device should be small and stable for the life of the process (e.g.
// a mount counter); it need not be cryptographically unique, only
// unique among concurrently mounted devices sharing one scratch
// directory.
type NameAllocator struct {
	device uint8
	seq    uint32
}

// NewNameAllocator returns an allocator tagged with device, the
// 0..255 identifier of the mount that owns it.
func NewNameAllocator(device uint8) *NameAllocator {
	return &NameAllocator{device: device}
}

// Next returns the next unique scratch name for this device.
func (a *NameAllocator) Next() string {
	seq := atomic.AddUint32(&a.seq, 1) - 1
	return fmt.Sprintf("ZIP/%02x%06x", a.device, seq&0xFFFFFF)
}
