package mem

import (
	"sort"
	"sync"

	"defs"
)

// Unit is satisfied by Frame and Page: index-addressed, page-sized units.
type Unit interface {
	~uint64
}

// MemoryRange is a half-open [Start, End) range over a Unit type.
type MemoryRange[T Unit] struct {
	Start T
	End   T
}

func (r MemoryRange[T]) Len() T {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r MemoryRange[T]) IsEmpty() bool {
	return r.Start == r.End
}

func (r MemoryRange[T]) Contains(v T) bool {
	return v >= r.Start && v < r.End
}

// adjacentTo reports whether r immediately precedes or follows o with no gap.
func (r MemoryRange[T]) adjacentTo(o MemoryRange[T]) bool {
	return r.End == o.Start || o.End == r.Start
}

// MergeWith fuses r and o, which must be exactly adjacent.
func (r MemoryRange[T]) mergeWith(o MemoryRange[T]) MemoryRange[T] {
	start := r.Start
	if o.Start < start {
		start = o.Start
	}
	end := r.End
	if o.End > end {
		end = o.End
	}
	return MemoryRange[T]{Start: start, End: end}
}

// Allocated is an exclusive-ownership token over a MemoryRange. The
// allocator never hands out two overlapping Allocated regions.
type Allocated[T Unit] struct {
	Range MemoryRange[T]
}

func (a Allocated[T]) Len() T { return a.Range.Len() }
func (a Allocated[T]) Start() T { return a.Range.Start }

// bootstrapCap is the inline free-list capacity available before the kernel
// heap exists; seeding data beyond this count promotes the allocator to a
// heap-backed slice, mirroring the bootstrap-then-heap lifecycle the
// reference implementation uses for its earliest allocations.
const bootstrapCap = 32

// RegionAllocator is a sorted, disjoint free-list allocator over a Unit type.
// It implements the identical first-fit/split/merge algorithm for both the
// physical frame allocator and the virtual page allocator.
type RegionAllocator[T Unit] struct {
	mu   sync.Mutex
	free []MemoryRange[T]
}

func NewRegionAllocator[T Unit]() *RegionAllocator[T] {
	return &RegionAllocator[T]{free: make([]MemoryRange[T], 0, bootstrapCap)}
}

// InsertFreeRegion seeds the allocator with an initially-free range. Used at
// boot to hand the frame allocator every Usable firmware memmap entry and to
// hand the page allocator its user/kernel virtual windows.
func (a *RegionAllocator[T]) InsertFreeRegion(r MemoryRange[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, r)
	a.sortAndMerge()
}

func (a *RegionAllocator[T]) sortAndMerge() {
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].Start < a.free[j].Start })
	a.mergeContiguous()
}

// mergeContiguous coalesces adjacent ranges. Recursive in spirit (it repeats
// until a full pass makes no change) though implemented as a single
// linear pass over the now-sorted list, which is sufficient because sorting
// already brings adjacent ranges next to each other.
func (a *RegionAllocator[T]) mergeContiguous() {
	if len(a.free) < 2 {
		return
	}
	out := a.free[:1]
	for _, r := range a.free[1:] {
		last := &out[len(out)-1]
		if last.adjacentTo(r) {
			*last = last.mergeWith(r)
			continue
		}
		out = append(out, r)
	}
	a.free = out
}

// Allocate returns the first (lowest-address) free chunk with room for n
// units, splitting off any before/after residual. Allocating zero units
// returns an empty, non-consuming token.
func (a *RegionAllocator[T]) Allocate(n T) (Allocated[T], *defs.Err_t) {
	if n == 0 {
		return Allocated[T]{}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.free {
		if r.Len() < n {
			continue
		}
		alloc := MemoryRange[T]{Start: r.Start, End: r.Start + n}
		a.replaceWithResidual(i, r, alloc)
		return Allocated[T]{Range: alloc}, nil
	}
	return Allocated[T]{}, defs.Errnoval(defs.ENOMEM)
}

// AllocateAt allocates exactly [start, start+n), failing with a conflict
// error unless a single free chunk fully covers that range.
func (a *RegionAllocator[T]) AllocateAt(start T, n T) (Allocated[T], *defs.Err_t) {
	if n == 0 {
		return Allocated[T]{}, nil
	}
	want := MemoryRange[T]{Start: start, End: start + n}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.free {
		if r.Start <= want.Start && r.End >= want.End {
			a.replaceWithResidual(i, r, want)
			return Allocated[T]{Range: want}, nil
		}
	}
	return Allocated[T]{}, defs.Errnoval(defs.EINVAL)
}

// replaceWithResidual removes free[i] == r and re-inserts whatever remains
// on either side of alloc (which must lie fully within r).
func (a *RegionAllocator[T]) replaceWithResidual(i int, r, alloc MemoryRange[T]) {
	residuals := make([]MemoryRange[T], 0, 2)
	if before := (MemoryRange[T]{Start: r.Start, End: alloc.Start}); !before.IsEmpty() {
		residuals = append(residuals, before)
	}
	if after := (MemoryRange[T]{Start: alloc.End, End: r.End}); !after.IsEmpty() {
		residuals = append(residuals, after)
	}
	a.free = append(a.free[:i], a.free[i+1:]...)
	a.free = append(a.free, residuals...)
	a.sortAndMerge()
}

// Free returns an allocated range to the free list. When merge is true,
// touching neighbors are coalesced (this is the default free-list
// maintenance policy; merge is only ever false in diagnostic paths).
func (a *RegionAllocator[T]) Free(alloc Allocated[T], merge bool) {
	if alloc.Range.IsEmpty() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, alloc.Range)
	if merge {
		a.sortAndMerge()
	} else {
		sort.Slice(a.free, func(i, j int) bool { return a.free[i].Start < a.free[j].Start })
	}
}

// MaxUnreserved returns the size of the largest free chunk, a diagnostic
// hook.
func (a *RegionAllocator[T]) MaxUnreserved() T {
	a.mu.Lock()
	defer a.mu.Unlock()
	var max T
	for _, r := range a.free {
		if l := r.Len(); l > max {
			max = l
		}
	}
	return max
}

// NextFree returns the lowest free chunk, or false if the allocator is full.
func (a *RegionAllocator[T]) NextFree() (MemoryRange[T], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return MemoryRange[T]{}, false
	}
	return a.free[0], true
}

// invariantsHold is exercised only by tests: disjointness and sortedness of
// the free list.
func (a *RegionAllocator[T]) invariantsHold() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 1; i < len(a.free); i++ {
		if a.free[i-1].Start > a.free[i].Start {
			return false
		}
		if a.free[i-1].End > a.free[i].Start {
			return false
		}
	}
	return true
}
