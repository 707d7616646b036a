package vm

import (
	"sync/atomic"

	"defs"
	"mem"
)

type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) toPTFlags() PTFlags {
	f := Present | UserAccessible
	if p&ProtWrite != 0 {
		f |= Writable
	}
	return f
}

type AreaFlags uint8

const (
	Private AreaFlags = 1 << iota
	Shared
	Fixed
	Growsdown
)

type AreaKind int

const (
	KindAnonymous AreaKind = iota
	KindFile
)

type AreaID uint64

// Area is one VMA: a contiguous, page-aligned range of a task's virtual
// space with uniform protection and backing kind. Population of the page
// table is deferred to the fault handler (a "lazy VMA" design) -- map_area
// never touches the mapper.
type Area struct {
	ID    AreaID
	Start mem.Page
	End   mem.Page
	Prot  Prot
	Flags AreaFlags
	Kind  AreaKind
}

func (a *Area) Contains(p mem.Page) bool { return p >= a.Start && p < a.End }

// Vmem is the per-task set of VMAs plus the page allocator that hands out
// addresses for non-fixed mmaps.
type Vmem struct {
	areas   map[AreaID]*Area
	nextID  atomic.Uint64
	pages   *mem.PageAllocator
	frames  *mem.FrameAllocator
}

func NewVmem(frames *mem.FrameAllocator) *Vmem {
	return &Vmem{
		areas:  make(map[AreaID]*Area),
		pages:  mem.NewVmemPageAllocator(),
		frames: frames,
	}
}

func (vm *Vmem) allocID() AreaID {
	return AreaID(vm.nextID.Add(1))
}

// AreaContaining returns the area overlapping [start, end), if any.
func (vm *Vmem) AreaContaining(start, end mem.Page) (*Area, bool) {
	for _, a := range vm.areas {
		if a.Contains(start) || a.Contains(end-1) || (start <= a.Start && a.Start < end) {
			return a, true
		}
	}
	return nil, false
}

// MapArea inserts a new, non-overlapping area. Page-table population is
// deferred to HandlePageFault.
func (vm *Vmem) MapArea(start, end mem.Page, prot Prot, flags AreaFlags, kind AreaKind) (*Area, *defs.Err_t) {
	if _, ok := vm.AreaContaining(start, end); ok {
		return nil, defs.Msg("vmem area overlaps an existing area")
	}
	a := &Area{ID: vm.allocID(), Start: start, End: end, Prot: prot, Flags: flags, Kind: kind}
	vm.areas[a.ID] = a
	return a, nil
}

// Mmap allocates a virtual range (at hint if Fixed, else from the per-Vmem
// page allocator) and adds an anonymous area. File-backed mmap is a
// Non-goal.
func (vm *Vmem) Mmap(hint mem.Page, sizePages uint64, prot Prot, flags AreaFlags) (*Area, *defs.Err_t) {
	var alloc mem.Allocated[mem.Page]
	var err *defs.Err_t
	if flags&Fixed != 0 {
		alloc, err = vm.pages.AllocateAt(hint, sizePages)
	} else {
		alloc, err = vm.pages.Allocate(sizePages)
	}
	if err != nil {
		return nil, err
	}
	return vm.MapArea(alloc.Range.Start, alloc.Range.End, prot, flags, KindAnonymous)
}

// Mprotect updates the protection of the area(s) spanning [start, end).
// Fault-driven: the PT is not rewalked eagerly.
func (vm *Vmem) Mprotect(start, end mem.Page, prot Prot) *defs.Err_t {
	a, ok := vm.AreaContaining(start, end-1)
	if !ok {
		return defs.Errnoval(defs.EINVAL)
	}
	a.Prot = prot
	return nil
}

// Munmap removes the area and unmaps its backing pages.
func (vm *Vmem) Munmap(start, end mem.Page, mapper *Mapper) *defs.Err_t {
	a, ok := vm.AreaContaining(start, end-1)
	if !ok {
		return defs.Errnoval(defs.EINVAL)
	}
	for p := a.Start; p < a.End; p++ {
		if f, _, ok := mapper.Translate(p); ok {
			mapper.UnmapSingle(p)
			vm.frames.Refdown(f)
		}
	}
	delete(vm.areas, a.ID)
	vm.pages.Free(mem.Allocated[mem.Page]{Range: mem.MemoryRange[mem.Page]{Start: a.Start, End: a.End}})
	return nil
}

// FaultReason classifies what the CPU reported about a page fault.
type FaultReason struct {
	Write   bool
	Present bool
	User    bool
}

// FaultOutcome tells the caller (the trap dispatcher) what to do next.
type FaultOutcome int

const (
	FaultResolved FaultOutcome = iota
	FaultSigSegv
	FaultKernelBug
)

// HandlePageFault is the hot path: classify the fault address and either
// resolve it (demand allocation or COW break) or hand back a disposition
// the caller raises as SIGSEGV.
func (vm *Vmem) HandlePageFault(mapper *Mapper, faultedVA mem.VirtAddr, reason FaultReason) FaultOutcome {
	if faultedVA.IsKernelHalf() {
		// A fault inside the kernel half is either a kernel bug (if from
		// kernel mode) or impossible to reach from user mode's own half.
		return FaultKernelBug
	}
	if reason.Present && !reason.User {
		// Present=1, User=0 flags set against a user-mode fault: kernel bug.
		return FaultKernelBug
	}
	if faultedVA.IsNullPage() {
		return FaultSigSegv
	}

	p := mem.PageContaining(faultedVA)
	area, ok := vm.AreaContaining(p, p+1)
	if !ok {
		return FaultSigSegv
	}

	frame, flags, mapped := mapper.Translate(p)
	if !mapped {
		alloc, err := vm.frames.AllocFrames(1)
		if err != nil {
			return FaultSigSegv
		}
		if err := mapper.MapToSingle(p, alloc.Range.Start, area.Prot.toPTFlags()); err != nil {
			return FaultSigSegv
		}
		return FaultResolved
	}

	if reason.Write && !flags.Has(Writable) {
		if area.Prot&ProtWrite == 0 {
			return FaultSigSegv
		}
		// COW break.
		if vm.frames.Refcnt(frame) == 1 {
			// Last sharer: no copy needed, just reinstate Writable.
			mapper.SetFlagsSingle(p, area.Prot.toPTFlags())
			return FaultResolved
		}
		alloc, err := vm.frames.AllocFrames(1)
		if err != nil {
			return FaultSigSegv
		}
		vm.frames.CopyFrame(alloc.Range.Start, frame)
		mapper.UnmapSingle(p)
		if err := mapper.MapToSingle(p, alloc.Range.Start, area.Prot.toPTFlags()); err != nil {
			return FaultSigSegv
		}
		vm.frames.Refdown(frame)
		return FaultResolved
	}

	// Translation exists, fault wasn't a resolvable write-to-COW case:
	// this is a genuine protection violation against area policy.
	return FaultSigSegv
}
