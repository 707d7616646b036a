package elf

import (
	"encoding/binary"
	"testing"

	"mem"
	"vm"
)

func freshKernel(t *testing.T) *mem.FrameAllocator {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.MemoryRange[mem.Frame]{{Start: 0, End: 4096}}, 0xffff800000000000)
	vm.InitKernelState(fa)
	return fa
}

// buildMinimalELF64 assembles a one-segment ET_EXEC binary by hand: a
// 64-byte ELF header, one 56-byte PT_LOAD program header, then the code
// bytes themselves.
func buildMinimalELF64(code []byte, vaddr uint64) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
	)
	phoff := uint64(ehdrSize)
	dataOff := ehdrSize + phdrSize

	buf := make([]byte, dataOff+len(code))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)            // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0x3e)         // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)            // e_version
	le.PutUint64(buf[24:], vaddr)        // e_entry
	le.PutUint64(buf[32:], phoff)        // e_phoff
	le.PutUint64(buf[40:], 0)            // e_shoff
	le.PutUint32(buf[48:], 0)            // e_flags
	le.PutUint16(buf[52:], ehdrSize)     // e_ehsize
	le.PutUint16(buf[54:], phdrSize)     // e_phentsize
	le.PutUint16(buf[56:], 1)            // e_phnum
	le.PutUint16(buf[58:], 0)            // e_shentsize
	le.PutUint16(buf[60:], 0)            // e_shnum
	le.PutUint16(buf[62:], 0)            // e_shstrndx

	p := buf[phoff:]
	le.PutUint32(p[0:], 1)             // p_type = PT_LOAD
	le.PutUint32(p[4:], 5)             // p_flags = R|X
	le.PutUint64(p[8:], uint64(dataOff))
	le.PutUint64(p[16:], vaddr)
	le.PutUint64(p[24:], vaddr)
	le.PutUint64(p[32:], uint64(len(code)))
	le.PutUint64(p[40:], uint64(len(code)))
	le.PutUint64(p[48:], 0x1000)

	copy(buf[dataOff:], code)
	return buf
}

func TestLoadMapsSegmentAndBuildsStack(t *testing.T) {
	fa := freshKernel(t)
	as, err := vm.NewAddressSpace()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	as.Switch()
	mapper := as.Mapper()
	v := vm.NewVmem(fa)

	code := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	const vaddr = 0x400000
	raw := buildMinimalELF64(code, vaddr)

	img, lerr := Load(raw, v, mapper, fa, [][]byte{[]byte("init")}, [][]byte{[]byte("HOME=/")})
	if lerr != nil {
		t.Fatalf("unexpected error: %v", lerr)
	}
	if img.Entry != mem.VirtAddr(vaddr) {
		t.Fatalf("entry mismatch: got %#x want %#x", img.Entry, vaddr)
	}
	if img.Argc != 1 {
		t.Fatalf("expected argc 1, got %d", img.Argc)
	}

	page := mem.PageContaining(mem.VirtAddr(vaddr))
	frame, flags, ok := mapper.Translate(page)
	if !ok {
		t.Fatalf("expected the PT_LOAD segment's page to be mapped")
	}
	if !flags.Has(vm.Present) || !flags.Has(vm.UserAccessible) {
		t.Fatalf("expected Present|UserAccessible on the loaded segment")
	}
	got := fa.Dmap(frame.StartAddress())
	pageOff := int(uint64(vaddr) & (mem.PageSize - 1))
	for i, b := range code {
		if got[pageOff+i] != b {
			t.Fatalf("segment byte %d mismatch: got %#x want %#x", i, got[pageOff+i], b)
		}
	}

	if img.StackTop%stackAlign != 0 {
		t.Fatalf("expected 16-byte aligned stack top, got %#x", img.StackTop)
	}

	lastAux := img.Aux[len(img.Aux)-1]
	if lastAux.Type != AtNull {
		t.Fatalf("expected auxv to end in AT_NULL")
	}
}

func TestLoadRejectsWrongMachine(t *testing.T) {
	fa := freshKernel(t)
	as, _ := vm.NewAddressSpace()
	as.Switch()
	mapper := as.Mapper()
	v := vm.NewVmem(fa)

	raw := buildMinimalELF64([]byte{0xc3}, 0x400000)
	raw[18] = 0x03 // e_machine = EM_386, not EM_X86_64

	if _, lerr := Load(raw, v, mapper, fa, nil, nil); lerr == nil {
		t.Fatalf("expected a wrong-machine ELF to be rejected")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	fa := freshKernel(t)
	as, _ := vm.NewAddressSpace()
	as.Switch()
	mapper := as.Mapper()
	v := vm.NewVmem(fa)

	if _, lerr := Load([]byte("not an elf file"), v, mapper, fa, nil, nil); lerr == nil {
		t.Fatalf("expected garbage input to be rejected")
	}
}
