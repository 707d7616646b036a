package mem

import "defs"

// PageAllocator is the virtual-page allocator: the same RegionAllocator
// algorithm as FrameAllocator, seeded with the user and kernel virtual
// windows instead of physical memory.
type PageAllocator struct {
	regions *RegionAllocator[Page]
}

// NewPageAllocator seeds the two canonical windows: user space
// [PageSize, MaxLowVaddr) and kernel space [MinHighVaddr, align_down(max)).
func NewPageAllocator() *PageAllocator {
	pa := &PageAllocator{regions: NewRegionAllocator[Page]()}
	userLo := Page(PageSize >> PageShift)
	userHi := Page(MaxLowVaddr >> PageShift)
	pa.regions.InsertFreeRegion(MemoryRange[Page]{Start: userLo, End: userHi})

	kernLo := Page(MinHighVaddr >> PageShift)
	kernHi := Page((^uint64(0) &^ (PageSize - 1)) >> PageShift)
	pa.regions.InsertFreeRegion(MemoryRange[Page]{Start: kernLo, End: kernHi})
	return pa
}

func (pa *PageAllocator) Allocate(n uint64) (Allocated[Page], *defs.Err_t) {
	return pa.regions.Allocate(Page(n))
}

func (pa *PageAllocator) AllocateAt(start Page, n uint64) (Allocated[Page], *defs.Err_t) {
	return pa.regions.AllocateAt(start, Page(n))
}

func (pa *PageAllocator) Free(alloc Allocated[Page]) {
	pa.regions.Free(alloc, true)
}

// NewVmemPageAllocator seeds a per-Vmem page allocator over the private
// mmap/brk window [USER_VALLOC_BASE, USER_VALLOC_END), used by vm.Vmem to
// hand out addresses for anonymous mappings that did not request a fixed
// hint.
func NewVmemPageAllocator() *PageAllocator {
	pa := &PageAllocator{regions: NewRegionAllocator[Page]()}
	lo := Page(UserVallocBase >> PageShift)
	hi := Page(UserVallocEnd >> PageShift)
	pa.regions.InsertFreeRegion(MemoryRange[Page]{Start: lo, End: hi})
	return pa
}

// KernelHeapWindow returns the fixed [KERNEL_HEAP_START, +KERNEL_HEAP_SIZE)
// range the kernel's own Go allocator is backed by once bootstrap frames
// run out -- declared here so `vm` can map it in one shot at boot.
func KernelHeapWindow() MemoryRange[Page] {
	lo := Page(KernelHeapStart >> PageShift)
	hi := Page((KernelHeapStart + KernelHeapSize) >> PageShift)
	return MemoryRange[Page]{Start: lo, End: hi}
}
