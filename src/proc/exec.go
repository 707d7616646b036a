package proc

import (
	"defs"
	"elf"
	"trap"
	"vm"
)

// Exec replaces t's address space with a freshly loaded ELF image: file's
// PT_LOAD segments are mapped into a brand new AddressSpace/Vmem pair, a
// user stack is built from argv/envp, and t.ResumeFrame is set so that the
// next dispatch enters the new program at its entry point with RFLAGS.IF
// set (a forked child's ResumeFrame, by contrast, has IF cleared).
func (t *Task) Exec(raw []byte, argv, envp [][]byte) *defs.Err_t {
	as, err := vm.NewAddressSpace()
	if err != nil {
		return err
	}
	mapper := as.Mapper()
	vmem := vm.NewVmem(t.frames)

	img, err := elf.Load(raw, vmem, mapper, t.frames, argv, envp)
	if err != nil {
		return err
	}

	t.AS = as
	t.Vmem = vmem
	as.Switch()

	// Reset the pending signal-handler frame: an exec discards everything
	// about the previous image except the task identity itself.
	t.signaledFrame = nil

	var frame trap.InterruptFrame
	frame.Rip = uint64(img.Entry)
	frame.Rsp = uint64(img.StackTop)
	frame.Rdi = uint64(img.Argc)
	frame.Cs = userCodeSelector
	frame.Ss = userDataSelector
	frame.Rflags = rflagsIF
	t.ResumeFrame = &frame

	return nil
}

const (
	userCodeSelector = 0x23
	userDataSelector = 0x1b
)
