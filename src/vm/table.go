// Package vm implements the page-table mapper, address spaces, and per-task
// virtual-memory areas (components D, E, F).
package vm

import (
	"defs"
	"mem"
)

// PTFlags mirrors the x86_64 page-table-entry flag bits this kernel cares
// about.
type PTFlags uint64

const (
	Present       PTFlags = 1 << 0
	Writable      PTFlags = 1 << 1
	UserAccessible PTFlags = 1 << 2
	PCD           PTFlags = 1 << 4
	HugePage      PTFlags = 1 << 7
	Global        PTFlags = 1 << 8
	COW           PTFlags = 1 << 9 // software-defined bit, marks a COW leaf
)

func (f PTFlags) Has(bit PTFlags) bool { return f&bit != 0 }

const addressMask uint64 = 0x000f_ffff_ffff_f000
const flagsMask uint64 = 0x01ff | (1 << 9)

// PageTableEntry is one 8-byte slot of a PageTable.
type PageTableEntry struct {
	data uint64
}

func (e PageTableEntry) IsUnused() bool { return e.data == 0 }
func (e *PageTableEntry) SetUnused()    { e.data = 0 }

func (e PageTableEntry) Flags() PTFlags { return PTFlags(e.data & flagsMask) }

func (e PageTableEntry) Addr() mem.PhysAddr {
	return mem.PhysAddr(e.data & addressMask)
}

// Frame returns the mapped frame, or false if the entry is not a present
// leaf (huge pages are treated as opaque leaves with no child table).
func (e PageTableEntry) Frame() (mem.Frame, bool) {
	if !e.Flags().Has(Present) || e.Flags().Has(HugePage) {
		return 0, false
	}
	return mem.FrameContaining(e.Addr()), true
}

func (e *PageTableEntry) SetFrame(f mem.Frame, flags PTFlags) {
	addr := f.StartAddress()
	e.data = uint64(addr) | (uint64(flags) & flagsMask)
}

func (e *PageTableEntry) SetFlags(flags PTFlags) {
	e.data = (e.data &^ flagsMask) | (uint64(flags) & flagsMask)
}

// PageTable is one 512-entry, page-sized level of the 4-level hierarchy.
type PageTable struct {
	Entries [mem.PageTableEntries]PageTableEntry
}

func (t *PageTable) Zero() {
	for i := range t.Entries {
		t.Entries[i].SetUnused()
	}
}

// tableStore backs every PageTable this simulation allocates, keyed by the
// frame that holds it -- the Go-native stand-in for "cast the HHDM address
// of this frame to a *PageTable".
type tableStore struct {
	frames *mem.FrameAllocator
	tables map[mem.Frame]*PageTable
}

func newTableStore(frames *mem.FrameAllocator) *tableStore {
	return &tableStore{frames: frames, tables: make(map[mem.Frame]*PageTable)}
}

func (ts *tableStore) tableFor(f mem.Frame) *PageTable {
	if t, ok := ts.tables[f]; ok {
		return t
	}
	t := &PageTable{}
	ts.tables[f] = t
	return t
}

// nextTable returns the child table at index, or false if unmapped.
func (ts *tableStore) nextTable(t *PageTable, index int) (*PageTable, bool) {
	f, ok := t.Entries[index].Frame()
	if !ok {
		return nil, false
	}
	return ts.tableFor(f), true
}

// nextTableCreate returns the child table at index, allocating and zeroing
// a fresh one if the slot was empty. insertFlags are OR'd onto whatever
// flags the slot already carries (so e.g. a later leaf map that wants
// UserAccessible can still see it on the parent entries it walked through).
func (ts *tableStore) nextTableCreate(t *PageTable, index int, insertFlags PTFlags) (*PageTable, *defs.Err_t) {
	entry := &t.Entries[index]
	created := false
	if entry.IsUnused() {
		alloc, err := ts.frames.AllocFrames(1)
		if err != nil {
			return nil, defs.Msg("next_table_create: frame allocation failed: %v", err)
		}
		entry.SetFrame(alloc.Range.Start, insertFlags|Present)
		created = true
	} else {
		entry.SetFlags(entry.Flags() | insertFlags)
	}
	f, ok := entry.Frame()
	if !ok {
		return nil, defs.Msg("next_table_create: slot aliases a huge page")
	}
	next := ts.tableFor(f)
	if created {
		next.Zero()
	}
	return next, nil
}
