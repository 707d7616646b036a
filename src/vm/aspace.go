package vm

import (
	"sync"

	"defs"
	"mem"
)

// AddressSpace owns exactly one L4 frame. Construction allocates a frame,
// zeros the lower (user) half, and copies the upper (kernel) half verbatim
// from the currently active table.
type AddressSpace struct {
	tables *tableStore
	p4     mem.Frame
}

// kernelState is process-wide state shared by every AddressSpace: the frame
// allocator, the table store, and which address space is "active" (stands
// in for the CR3 register in this hosted simulation).
type kernelState struct {
	mu      sync.Mutex
	frames  *mem.FrameAllocator
	tables  *tableStore
	active  *AddressSpace
}

var kstate *kernelState

// InitKernelState wires the frame allocator global state used by every
// AddressSpace and Mapper created afterward. Called once at boot.
func InitKernelState(frames *mem.FrameAllocator) {
	kstate = &kernelState{frames: frames, tables: newTableStore(frames)}
}

// NewAddressSpace allocates an L4 frame, zeroes its user half, and copies
// the kernel half from the currently active address space (or leaves it
// zeroed if none is active yet, i.e. during boot).
func NewAddressSpace() (*AddressSpace, *defs.Err_t) {
	alloc, err := kstate.frames.AllocFrames(1)
	if err != nil {
		return nil, defs.Msg("NewAddressSpace: %v", err)
	}
	as := &AddressSpace{tables: kstate.tables, p4: alloc.Range.Start}
	p4 := kstate.tables.tableFor(as.p4)
	p4.Zero()
	if kstate.active != nil {
		activeP4 := kstate.tables.tableFor(kstate.active.p4)
		for i := 256; i < mem.PageTableEntries; i++ {
			p4.Entries[i] = activeP4.Entries[i]
		}
	}
	return as, nil
}

// CurrentAddressSpace returns a non-owning handle on the active address
// space, standing in for constructing an AddressSpace from a CR3 read.
func CurrentAddressSpace() *AddressSpace {
	return kstate.active
}

// Switch installs as as the active address space (a CR3 write).
func (as *AddressSpace) Switch() {
	kstate.mu.Lock()
	kstate.active = as
	kstate.mu.Unlock()
}

// IsActive reports whether as is the currently installed address space.
func (as *AddressSpace) IsActive() bool {
	return kstate.active == as
}

// Mapper returns a Mapper over this address space's page tables.
func (as *AddressSpace) Mapper() *Mapper {
	return newMapper(as.tables, as.p4)
}

// TemporarilySwitch is the scoped "install this address space, then
// restore" guard described in the design notes: kernel code that needs to
// touch a non-current task's user memory holds one of these for the
// duration, and must never yield while it does.
type TemporarilySwitch struct {
	prev *AddressSpace
}

func (as *AddressSpace) TemporarilySwitchIn() *TemporarilySwitch {
	prev := kstate.active
	as.Switch()
	return &TemporarilySwitch{prev: prev}
}

func (g *TemporarilySwitch) Release() {
	if g.prev != nil {
		g.prev.Switch()
	}
}

// Fork deep-copies every user-half table entry into a new address space. If
// setCow is true, both the source and the destination leaf lose Writable
// (see DESIGN.md: some COW implementations only strip it on the destination,
// but stripping both sides is what makes the parent's own writes fault too),
// and the shared frame's refcount is bumped so the COW fault handler can
// later tell "last sharer" from "still shared".
func (as *AddressSpace) Fork(setCow bool) (*AddressSpace, *defs.Err_t) {
	child, err := NewAddressSpace()
	if err != nil {
		return nil, err
	}
	srcP4 := as.tables.tableFor(as.p4)
	dstP4 := child.tables.tableFor(child.p4)

	for l4i := 0; l4i < 256; l4i++ {
		srcFrame, ok := srcP4.Entries[l4i].Frame()
		if !ok {
			continue
		}
		if _, ferr := as.tables.nextTableCreate(dstP4, l4i, srcP4.Entries[l4i].Flags()); ferr != nil {
			return nil, ferr
		}
		dstFrame, _ := dstP4.Entries[l4i].Frame()
		if err := forkTable(as.tables, srcFrame, dstFrame, 3, setCow); err != nil {
			return nil, err
		}
	}
	return child, nil
}

// forkTable recursively walks level `depth` (4=P4 entries already handled
// by caller, 3=P3 down to 1=P1 leaves), copying present entries from src
// into dst, creating dst's parent tables lazily.
func forkTable(ts *tableStore, srcFrame, dstFrame mem.Frame, depth int, setCow bool) *defs.Err_t {
	src := ts.tableFor(srcFrame)
	dst := ts.tableFor(dstFrame)
	for i := 0; i < mem.PageTableEntries; i++ {
		se := &src.Entries[i]
		if se.IsUnused() {
			continue
		}
		if depth == 1 || se.Flags().Has(HugePage) {
			f, ok := se.Frame()
			if !ok {
				continue
			}
			flags := se.Flags()
			if setCow {
				flags &^= Writable
				flags |= COW
				se.SetFlags(flags)
			}
			dst.Entries[i].SetFrame(f, flags)
			kstate.frames.Refup(f)
			continue
		}
		childSrcFrame, ok := se.Frame()
		if !ok {
			continue
		}
		if _, err := ts.nextTableCreate(dst, i, se.Flags()); err != nil {
			return err
		}
		childDstFrame, _ := dst.Entries[i].Frame()
		if err := forkTable(ts, childSrcFrame, childDstFrame, depth-1, setCow); err != nil {
			return err
		}
	}
	return nil
}
