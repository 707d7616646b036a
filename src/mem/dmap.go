package mem

import (
	"sync/atomic"

	"defs"
	"oommsg"
)

// PhysPage tracks the reference count and CPU-load bitmask of one physical
// frame. The refcount is what the COW fault handler (vm.Vmem.HandlePageFault)
// consults to distinguish "I am the last sharer of this frame" (flip
// Writable, no copy) from "other address spaces still hold it" (copy, then
// drop one reference).
type PhysPage struct {
	Refcnt  int32
	Cpumask uint64
}

// FrameAllocator is the physical-frame allocator. It pairs a
// RegionAllocator[Frame] with a parallel refcount table indexed relative to
// the lowest frame number it was seeded with.
type FrameAllocator struct {
	regions    *RegionAllocator[Frame]
	startFrame Frame
	pages      []PhysPage
	backing    []byte // simulated physical memory, HHDM-addressable via Dmap
	hhdmOffset uint64
}

// NewFrameAllocator seeds the allocator from the firmware's Usable memmap
// entries. Entries smaller than one page, or not page-aligned, are expected
// to already have been filtered by the caller (bootinfo translation layer);
// only whole pages are ever handed out.
func NewFrameAllocator(usable []MemoryRange[Frame], hhdmOffset uint64) *FrameAllocator {
	fa := &FrameAllocator{
		regions:    NewRegionAllocator[Frame](),
		hhdmOffset: hhdmOffset,
	}
	var lo, hi Frame
	first := true
	for _, r := range usable {
		if r.IsEmpty() {
			continue
		}
		if first || r.Start < lo {
			lo = r.Start
		}
		if first || r.End > hi {
			hi = r.End
		}
		first = false
		fa.regions.InsertFreeRegion(r)
	}
	fa.startFrame = lo
	fa.pages = make([]PhysPage, hi-lo)
	fa.backing = make([]byte, uint64(hi-lo)*PageSize)
	return fa
}

func (fa *FrameAllocator) index(f Frame) int {
	return int(f - fa.startFrame)
}

// AllocFrames allocates n contiguous, zeroed frames, each seeded with
// refcount 1.
func (fa *FrameAllocator) AllocFrames(n uint64) (Allocated[Frame], *defs.Err_t) {
	alloc, err := fa.regions.Allocate(Frame(n))
	if err != nil {
		select {
		case oommsg.OomCh <- oommsg.Oommsg_t{Need: int(n)}:
		default:
		}
		return alloc, err
	}
	for f := alloc.Range.Start; f < alloc.Range.End; f++ {
		fa.pages[fa.index(f)].Refcnt = 1
	}
	clearBytes(fa.frameBytes(alloc.Range.Start, n))
	return alloc, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (fa *FrameAllocator) frameBytes(start Frame, n uint64) []byte {
	off := uint64(start-fa.startFrame) * PageSize
	return fa.backing[off : off+n*PageSize]
}

// FreeFrames returns n frames starting at start to the allocator, merging
// with adjacent free ranges.
func (fa *FrameAllocator) FreeFrames(start Frame, n uint64) {
	fa.regions.Free(Allocated[Frame]{Range: MemoryRange[Frame]{Start: start, End: start + Frame(n)}}, true)
}

// Refup increments a frame's reference count, taken when a second address
// space gains a mapping to it (COW fork).
func (fa *FrameAllocator) Refup(f Frame) {
	p := &fa.pages[fa.index(f)]
	if atomic.AddInt32(&p.Refcnt, 1) <= 1 {
		panic("mem: Refup of a frame with nonpositive refcount")
	}
}

// Refdown decrements a frame's reference count, freeing it back to the
// allocator when it reaches zero. Returns true if it was freed.
func (fa *FrameAllocator) Refdown(f Frame) bool {
	p := &fa.pages[fa.index(f)]
	c := atomic.AddInt32(&p.Refcnt, -1)
	if c < 0 {
		panic("mem: Refdown of a frame with nonpositive refcount")
	}
	if c == 0 {
		fa.FreeFrames(f, 1)
		return true
	}
	return false
}

// Refcnt reports the current reference count of the frame backing f.
func (fa *FrameAllocator) Refcnt(f Frame) int32 {
	return atomic.LoadInt32(&fa.pages[fa.index(f)].Refcnt)
}

// Dmap returns the direct-mapped (HHDM) byte slice for one page starting at
// pa, exactly as if virt = phys + hhdmOffset were dereferenced.
func (fa *FrameAllocator) Dmap(pa PhysAddr) []byte {
	f := FrameContaining(pa)
	off := uint64(pa) & (PageSize - 1)
	base := fa.frameBytes(f, 1)
	return base[off:]
}

// CopyFrame copies the full page contents of src into dst, used by the COW
// break path when a frame has more than one sharer.
func (fa *FrameAllocator) CopyFrame(dst, src Frame) {
	copy(fa.frameBytes(dst, 1), fa.frameBytes(src, 1))
}

// HHDMOffset returns the configured higher-half direct-map offset, the
// value such that virt = phys + offset covers all of physical memory.
func (fa *FrameAllocator) HHDMOffset() uint64 {
	return fa.hhdmOffset
}
