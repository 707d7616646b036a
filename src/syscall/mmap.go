package syscall

import (
	"defs"
	"mem"
	"proc"
	"vm"
)

const (
	protRead  = 0x1
	protWrite = 0x2
	protExec  = 0x4

	mapFixed   = 0x10
	mapPrivate = 0x02
	mapShared  = 0x01
)

func toVmProt(prot int32) vm.Prot {
	var p vm.Prot
	if prot&protRead != 0 {
		p |= vm.ProtRead
	}
	if prot&protWrite != 0 {
		p |= vm.ProtWrite
	}
	if prot&protExec != 0 {
		p |= vm.ProtExec
	}
	return p
}

func toVmFlags(flags int32) vm.AreaFlags {
	var f vm.AreaFlags
	if flags&mapShared != 0 {
		f |= vm.Shared
	} else {
		f |= vm.Private
	}
	if flags&mapFixed != 0 {
		f |= vm.Fixed
	}
	return f
}

// sysMmapImpl supports anonymous mappings only (per vm.Vmem.Mmap's own
// comment); every mapping is anonymous, ignoring the fd/offset arguments a
// real MAP_ANONYMOUS-less caller would pass.
func sysMmapImpl(t *proc.Task, addr, length uint64, prot, flags int32) (int64, *defs.Err_t) {
	sizePages := (length + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	if sizePages == 0 {
		sizePages = 1
	}
	hint := mem.PageContaining(mem.VirtAddr(addr))
	area, err := t.Vmem.Mmap(hint, sizePages, toVmProt(prot), toVmFlags(flags))
	if err != nil {
		return 0, err
	}
	return int64(area.Start.StartAddress()), nil
}

func sysMprotectImpl(t *proc.Task, addr, length uint64, prot int32) (int64, *defs.Err_t) {
	start := mem.PageContaining(mem.VirtAddr(addr))
	end := mem.PageContaining(mem.VirtAddr(addr + length))
	return 0, t.Vmem.Mprotect(start, end, toVmProt(prot))
}

func sysMunmapImpl(t *proc.Task, addr, length uint64) *defs.Err_t {
	start := mem.PageContaining(mem.VirtAddr(addr))
	end := mem.PageContaining(mem.VirtAddr(addr + length))
	return t.Vmem.Munmap(start, end, t.AS.Mapper())
}
