// Package elf loads an ELF executable into a fresh address space and
// builds the initial user stack (argv/envp/auxv), using the standard
// library's debug/elf for parsing the same way kernel/chentry.go does.
package elf

import (
	stdelf "debug/elf"
	"encoding/binary"

	"defs"
	"mem"
	"util"
	"vm"
)

// AuxEntry is one (type, value) pair of the ELF auxiliary vector.
type AuxEntry struct {
	Type  uint64
	Value uint64
}

const (
	AtNull  = 0
	AtPhdr  = 3
	AtPhent = 4
	AtPhnum = 5
	AtEntry = 9
)

// Image is the result of loading one ELF binary: the entry point, the
// built stack top, and the auxv entries recorded (AT_PHENT, AT_PHNUM,
// AT_ENTRY, AT_NULL).
type Image struct {
	Entry    mem.VirtAddr
	StackTop mem.VirtAddr
	Argc     int
	Aux      []AuxEntry
}

const (
	userStackPages = 32 // 128 KiB, half of mem.UserStackSize (64 pages)
	stackAlign     = 16
)

// Load parses raw (a whole ELF file's bytes), maps its PT_LOAD segments
// into v/mapper, allocates and populates a user stack, and returns the
// entry point and initial register/stack state for Task.Exec to install.
func Load(raw []byte, v *vm.Vmem, mapper *vm.Mapper, frames *mem.FrameAllocator, argv, envp [][]byte) (*Image, *defs.Err_t) {
	f, err := stdelf.NewFile(bytesReaderAt(raw))
	if err != nil {
		return nil, defs.Errnoval(defs.ENOEXEC)
	}
	defer f.Close()

	if f.Class != stdelf.ELFCLASS64 || f.Machine != stdelf.EM_X86_64 {
		return nil, defs.Errnoval(defs.ENOEXEC)
	}

	for _, prog := range f.Progs {
		if prog.Type != stdelf.PT_LOAD {
			continue
		}
		start := mem.VirtAddr(util.Rounddown(prog.Vaddr, uint64(mem.PageSize)))
		end := mem.VirtAddr(util.Roundup(prog.Vaddr+prog.Memsz, uint64(mem.PageSize)))
		prot := vm.ProtRead
		if prog.Flags&stdelf.PF_W != 0 {
			prot |= vm.ProtWrite
		}
		if prog.Flags&stdelf.PF_X != 0 {
			prot |= vm.ProtExec
		}
		startPage := mem.PageContaining(start)
		endPage := mem.PageContaining(end - 1) + 1
		if _, aerr := v.MapArea(startPage, endPage, prot, vm.Private, vm.KindAnonymous); aerr != nil {
			return nil, aerr
		}
		// Eagerly populate every page of this segment: the loader needs
		// the bytes resident now rather than lazily through the normal
		// page-fault path, since there is no backing file object to
		// fault the data in from in this hosted simulation.
		if werr := populateSegment(mapper, frames, prog, startPage, endPage); werr != nil {
			return nil, werr
		}
	}

	stackTopPage, aerr := v.Mmap(0, userStackPages, vm.ProtRead|vm.ProtWrite, vm.Private|vm.Growsdown)
	if aerr != nil {
		return nil, aerr
	}
	// Map every stack page now so buildStack writes into resident frames.
	for p := stackTopPage.Start; p < stackTopPage.End; p++ {
		if v.HandlePageFault(mapper, p.StartAddress(), vm.FaultReason{Write: true, User: true}) != vm.FaultResolved {
			return nil, defs.Errnoval(defs.ENOMEM)
		}
	}
	stackTop := stackTopPage.End.StartAddress()

	const elf64PhdrSize = 56
	aux := []AuxEntry{
		{Type: AtPhent, Value: elf64PhdrSize},
		{Type: AtPhnum, Value: uint64(len(f.Progs))},
		{Type: AtEntry, Value: f.Entry},
		{Type: AtNull, Value: 0},
	}

	sp, argc, werr := buildStack(mapper, frames, stackTop, argv, envp, aux)
	if werr != nil {
		return nil, werr
	}

	return &Image{
		Entry:    mem.VirtAddr(f.Entry),
		StackTop: sp,
		Argc:     argc,
		Aux:      aux,
	}, nil
}

// populateSegment maps and zero/copy-fills every page of one PT_LOAD
// segment. Frames are allocated by HandlePageFault's demand path in the
// general case; the loader instead maps eagerly since program data must be
// in place before the entry point is ever reached.
func populateSegment(mapper *vm.Mapper, frames *mem.FrameAllocator, prog *stdelf.Prog, start, end mem.Page) *defs.Err_t {
	data := make([]byte, prog.Memsz)
	n, rerr := prog.ReadAt(data[:prog.Filesz], 0)
	if rerr != nil && n == 0 && prog.Filesz > 0 {
		return defs.Errnoval(defs.ENOEXEC)
	}

	flags := vm.Present | vm.UserAccessible
	if prog.Flags&stdelf.PF_W != 0 {
		flags |= vm.Writable
	}

	for p := start; p < end; p++ {
		if _, _, ok := mapper.Translate(p); ok {
			continue
		}
		alloc, aerr := frames.AllocFrames(1)
		if aerr != nil {
			return aerr
		}
		if merr := mapper.MapToSingle(p, alloc.Range.Start, flags); merr != nil {
			return merr
		}
		dst := frames.Dmap(alloc.Range.Start.StartAddress())
		segOff := int(uint64(p.StartAddress()) - uint64(start.StartAddress()))
		if segOff < len(data) {
			copy(dst, data[segOff:])
		}
	}
	return nil
}

// buildStack lays out the SysV x86_64 initial stack, low to high address:
// argc, argv pointers, a NULL, envp pointers, a NULL, then the auxv (type,
// value) pairs supplied in aux (already terminated with an AT_NULL entry).
// The string bytes themselves are written first, at the top of the stack
// above all of that, highest address first, so pointers into them are known
// before the vectors are built. Honors the 16-byte stack alignment contract
// at the entry point: the returned sp is 16-byte aligned and points at argc.
func buildStack(mapper *vm.Mapper, frames *mem.FrameAllocator, top mem.VirtAddr, argv, envp [][]byte, aux []AuxEntry) (mem.VirtAddr, int, *defs.Err_t) {
	sp := uint64(top)

	writeString := func(s []byte) uint64 {
		sp -= uint64(len(s) + 1)
		writeUserBytes(mapper, frames, mem.VirtAddr(sp), append(append([]byte{}, s...), 0))
		return sp
	}

	var argvPtrs, envpPtrs []uint64
	for _, e := range envp {
		envpPtrs = append(envpPtrs, writeString(e))
	}
	for _, a := range argv {
		argvPtrs = append(argvPtrs, writeString(a))
	}

	sp &^= uint64(stackAlign - 1)

	words := make([]uint64, 0, 2+len(argvPtrs)+1+len(envpPtrs)+1+2*len(aux))
	words = append(words, uint64(len(argvPtrs)))
	words = append(words, argvPtrs...)
	words = append(words, 0)
	words = append(words, envpPtrs...)
	words = append(words, 0)
	for _, a := range aux {
		words = append(words, a.Type, a.Value)
	}

	// An odd word count would leave argc 8 bytes off alignment; pad above
	// the vectors so argc itself lands on the aligned sp.
	if len(words)%2 == 1 {
		sp -= 8
	}

	for i := len(words) - 1; i >= 0; i-- {
		sp -= 8
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], words[i])
		writeUserBytes(mapper, frames, mem.VirtAddr(sp), b[:])
	}

	return mem.VirtAddr(sp), len(argvPtrs), nil
}

func writeUserBytes(mapper *vm.Mapper, frames *mem.FrameAllocator, va mem.VirtAddr, data []byte) {
	for len(data) > 0 {
		page := mem.PageContaining(va)
		frame, _, ok := mapper.Translate(page)
		if !ok {
			return
		}
		pageBytes := frames.Dmap(frame.StartAddress())
		pageOff := int(uint64(va) & (mem.PageSize - 1))
		n := copy(pageBytes[pageOff:], data)
		data = data[n:]
		va = mem.VirtAddr(uint64(va) + uint64(n))
	}
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, errEOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, errEOF
	}
	return n, nil
}

var errEOF = errorString("elf: short read")

type errorString string

func (e errorString) Error() string { return string(e) }
