package vm

import (
	"defs"
	"mem"
)

// MappedPages is a must-use token returned by Map: it owns both the virtual
// range and the physical frames backing it, exactly as the reference
// mapper's PageFlush/MappedPages pairing does, so callers cannot forget to
// invalidate the TLB nor leak the frames.
type MappedPages struct {
	Pages  mem.MemoryRange[mem.Page]
	Frames mem.MemoryRange[mem.Frame]
	Flags  PTFlags
}

func (mp MappedPages) Contains(p mem.Page) bool { return mp.Pages.Contains(p) }

// Mapper walks and mutates one 4-level page-table hierarchy rooted at a
// given L4 frame.
type Mapper struct {
	tables *tableStore
	p4     *PageTable
	p4Frame mem.Frame
}

func newMapper(ts *tableStore, p4Frame mem.Frame) *Mapper {
	return &Mapper{tables: ts, p4: ts.tableFor(p4Frame), p4Frame: p4Frame}
}

func pageIndices(p mem.Page) (l4, l3, l2, l1 int) {
	v := uint64(p) << mem.PageShift
	l4 = int((v >> mem.L4Shift) & 0x1ff)
	l3 = int((v >> mem.L3Shift) & 0x1ff)
	l2 = int((v >> mem.L2Shift) & 0x1ff)
	l1 = int((v >> mem.L1Shift) & 0x1ff)
	return
}

// Translate returns the physical frame and flags a virtual page currently
// maps to, or ok=false if unmapped at any level.
func (m *Mapper) Translate(p mem.Page) (mem.Frame, PTFlags, bool) {
	l4i, l3i, l2i, l1i := pageIndices(p)
	l3, ok := m.tables.nextTable(m.p4, l4i)
	if !ok {
		return 0, 0, false
	}
	l2, ok := m.tables.nextTable(l3, l3i)
	if !ok {
		return 0, 0, false
	}
	l1, ok := m.tables.nextTable(l2, l2i)
	if !ok {
		return 0, 0, false
	}
	e := &l1.Entries[l1i]
	f, ok := e.Frame()
	if !ok {
		return 0, 0, false
	}
	return f, e.Flags(), true
}

// MapToSingle creates parent tables as needed and maps one page to one
// frame. Fails with an already-mapped error if the leaf is occupied.
func (m *Mapper) MapToSingle(p mem.Page, f mem.Frame, flags PTFlags) *defs.Err_t {
	l4i, l3i, l2i, l1i := pageIndices(p)
	parentFlags := Present | Writable
	if flags.Has(UserAccessible) {
		parentFlags |= UserAccessible
	}
	l3, err := m.tables.nextTableCreate(m.p4, l4i, parentFlags)
	if err != nil {
		return err
	}
	l2, err := m.tables.nextTableCreate(l3, l3i, parentFlags)
	if err != nil {
		return err
	}
	l1, err := m.tables.nextTableCreate(l2, l2i, parentFlags)
	if err != nil {
		return err
	}
	e := &l1.Entries[l1i]
	if !e.IsUnused() {
		return defs.Msg("page %v already mapped", p)
	}
	e.SetFrame(f, flags|Present)
	return nil
}

// MapTo maps a contiguous run of pages to a contiguous run of frames.
func (m *Mapper) MapTo(pages mem.MemoryRange[mem.Page], frames mem.MemoryRange[mem.Frame], flags PTFlags) (MappedPages, *defs.Err_t) {
	if uint64(pages.Len()) != uint64(frames.Len()) {
		return MappedPages{}, defs.Msg("page range and frame range length mismatch")
	}
	f := frames.Start
	for p := pages.Start; p < pages.End; p++ {
		if err := m.MapToSingle(p, f, flags); err != nil {
			return MappedPages{}, err
		}
		f++
	}
	return MappedPages{Pages: pages, Frames: frames, Flags: flags}, nil
}

// SetFlags rewrites the flags of every leaf entry mp covers.
func (m *Mapper) SetFlags(mp *MappedPages, flags PTFlags) {
	for p := mp.Pages.Start; p < mp.Pages.End; p++ {
		l4i, l3i, l2i, l1i := pageIndices(p)
		l3, ok := m.tables.nextTable(m.p4, l4i)
		if !ok {
			continue
		}
		l2, ok := m.tables.nextTable(l3, l3i)
		if !ok {
			continue
		}
		l1, ok := m.tables.nextTable(l2, l2i)
		if !ok {
			continue
		}
		l1.Entries[l1i].SetFlags(flags | Present)
	}
	mp.Flags = flags
}

// SetFlagsSingle is SetFlags for one page, used by the COW-break fast path.
func (m *Mapper) SetFlagsSingle(p mem.Page, flags PTFlags) bool {
	l4i, l3i, l2i, l1i := pageIndices(p)
	l3, ok := m.tables.nextTable(m.p4, l4i)
	if !ok {
		return false
	}
	l2, ok := m.tables.nextTable(l3, l3i)
	if !ok {
		return false
	}
	l1, ok := m.tables.nextTable(l2, l2i)
	if !ok {
		return false
	}
	l1.Entries[l1i].SetFlags(flags | Present)
	return true
}

// Unmap clears every leaf entry mp covers and returns the frames to the
// allocator (dropping one reference each; a shared COW frame with other
// sharers survives).
func (m *Mapper) Unmap(mp MappedPages, frames *mem.FrameAllocator) {
	f := mp.Frames.Start
	for p := mp.Pages.Start; p < mp.Pages.End; p++ {
		l4i, l3i, l2i, l1i := pageIndices(p)
		if l3, ok := m.tables.nextTable(m.p4, l4i); ok {
			if l2, ok := m.tables.nextTable(l3, l3i); ok {
				if l1, ok := m.tables.nextTable(l2, l2i); ok {
					l1.Entries[l1i].SetUnused()
				}
			}
		}
		frames.Refdown(f)
		f++
	}
}

// UnmapSingle clears one leaf entry without touching the frame's refcount;
// callers that already hold their own reference (e.g. a COW break moving a
// page from old frame to new frame) use this instead of Unmap.
func (m *Mapper) UnmapSingle(p mem.Page) {
	l4i, l3i, l2i, l1i := pageIndices(p)
	if l3, ok := m.tables.nextTable(m.p4, l4i); ok {
		if l2, ok := m.tables.nextTable(l3, l3i); ok {
			if l1, ok := m.tables.nextTable(l2, l2i); ok {
				l1.Entries[l1i].SetUnused()
			}
		}
	}
}
