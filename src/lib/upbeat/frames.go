package upbeat

import (
	"github.com/bits-and-blooms/bitset"

	"contentment/src/lib/trust"
)

var log = trust.Named("upbeat")

// FrameAllocator hands out fixed size frames from one contiguous region of
// physical memory.  The in-use bitmap has one bit per frame.  Frames are
// zeroed when they are handed out.
type FrameAllocator struct {
	name      string
	mem       *PhysicalMemory
	start     uint64
	frameSize uint64
	frames    uint
	inUse     *bitset.BitSet
	used      uint
	hint      uint
}

// NewFrameAllocator covers [start, start+size) with frames of frameSize bytes.
// The region must be frame aligned and lie inside mem.
func NewFrameAllocator(name string, mem *PhysicalMemory, start, size, frameSize uint64) (*FrameAllocator, error) {
	if frameSize == 0 || start%frameSize != 0 || size%frameSize != 0 || size == 0 {
		return nil, AllocBadRequest
	}
	if !mem.Contains(start, size) {
		return nil, AllocBadAddress
	}
	n := uint(size / frameSize)
	return &FrameAllocator{
		name:      name,
		mem:       mem,
		start:     start,
		frameSize: frameSize,
		frames:    n,
		inUse:     bitset.New(n),
	}, nil
}

func (a *FrameAllocator) Name() string {
	return a.name
}

func (a *FrameAllocator) FrameSize() uint64 {
	return a.frameSize
}

func (a *FrameAllocator) Frames() uint {
	return a.frames
}

// InUse is the number of frames currently handed out.
func (a *FrameAllocator) InUse() uint {
	return a.used
}

func (a *FrameAllocator) Available() uint {
	return a.frames - a.used
}

// FramesFor is the number of frames needed to hold size bytes.
func (a *FrameAllocator) FramesFor(size uint64) uint {
	return uint((size + a.frameSize - 1) / a.frameSize)
}

// Alloc returns the physical address of one free frame.
func (a *FrameAllocator) Alloc() (uint64, error) {
	return a.AllocContiguous(1)
}

// AllocContiguous finds n adjacent free frames, marks them in use and returns
// the address of the first.  The search starts after the last allocation and
// wraps around once.
func (a *FrameAllocator) AllocContiguous(n uint) (uint64, error) {
	if n == 0 || n > a.frames {
		return 0, AllocBadRequest
	}
	first, ok := a.findRun(a.hint, a.frames, n)
	if !ok {
		first, ok = a.findRun(0, a.hint+n-1, n)
	}
	if !ok {
		log.Debugf("%s: no run of %d free frames (%d/%d in use)", a.name, n, a.used, a.frames)
		return 0, AllocNoFreeFrames
	}
	for i := first; i < first+n; i++ {
		a.inUse.Set(i)
	}
	a.used += n
	a.hint = (first + n) % a.frames
	addr := a.start + uint64(first)*a.frameSize
	if err := a.mem.Zero(addr, uint64(n)*a.frameSize); err != nil {
		return 0, err
	}
	return addr, nil
}

// findRun looks for n clear bits wholly inside [from, limit).
func (a *FrameAllocator) findRun(from, limit uint, n uint) (uint, bool) {
	if limit > a.frames {
		limit = a.frames
	}
	i := from
	for i+n <= limit {
		busy, found := a.inUse.NextSet(i)
		if !found || busy >= i+n {
			return i, true
		}
		i = busy + 1
	}
	return 0, false
}

// Free releases the single frame at addr.
func (a *FrameAllocator) Free(addr uint64) error {
	return a.FreeContiguous(addr, 1)
}

// FreeContiguous releases n frames starting at addr.  Every frame must be in
// use; nothing is released if one is not.
func (a *FrameAllocator) FreeContiguous(addr uint64, n uint) error {
	first, err := a.frameIndex(addr)
	if err != nil {
		return err
	}
	if n == 0 || first+n > a.frames {
		return AllocBadRequest
	}
	for i := first; i < first+n; i++ {
		if !a.inUse.Test(i) {
			return AllocAlreadyFree
		}
	}
	for i := first; i < first+n; i++ {
		a.inUse.Clear(i)
	}
	a.used -= n
	return nil
}

// IsFree reports whether the frame holding addr is free.
func (a *FrameAllocator) IsFree(addr uint64) bool {
	i, err := a.frameIndex(addr)
	if err != nil {
		return false
	}
	return !a.inUse.Test(i)
}

func (a *FrameAllocator) frameIndex(addr uint64) (uint, error) {
	if addr < a.start || addr >= a.start+uint64(a.frames)*a.frameSize {
		return 0, AllocBadAddress
	}
	if (addr-a.start)%a.frameSize != 0 {
		return 0, AllocBadAddress
	}
	return uint((addr - a.start) / a.frameSize), nil
}

// Report logs the allocator's accounting at the stats level.
func (a *FrameAllocator) Report() {
	log.Statsf(a.name, "%d of %d frames of %#x bytes in use", a.used, a.frames, a.frameSize)
}
