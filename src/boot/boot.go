// Package boot wires the independently-testable packages (mem, vm, proc,
// trap, signal, syscall, pipe, initramfs) into one running kernel instance,
// the way a real x86_64 entry stub would after long-mode setup: install the
// fixed trap vectors, parse the boot-supplied initramfs image, and start
// init. The real entry point's assembly bootstrap lives outside this repo,
// so this is glue code written in the same style as the packages it
// connects.
package boot

import (
	"defs"
	"fdops"
	"initramfs"
	"mem"
	"pipe"
	"proc"
	"signal"
	"syscall"
	"trap"
	"vm"
)

const (
	vecPageFault = 14
	vecTimer     = 32
)

// Kernel holds the wired-together runtime: a scheduler, a trap dispatcher,
// and the parsed root filesystem, plus the frame allocator they all share.
type Kernel struct {
	Frames     *mem.FrameAllocator
	Scheduler  *proc.Scheduler
	Dispatcher *trap.Dispatcher
	RootFS     *initramfs.FS
}

// New builds a Kernel from a physical memory map and the raw bytes of the
// boot-supplied CPIO-newc initramfs image.
func New(ranges []mem.MemoryRange[mem.Frame], kernelVaddr uint64, image []byte) (*Kernel, *defs.Err_t) {
	frames := mem.NewFrameAllocator(ranges, kernelVaddr)
	vm.InitKernelState(frames)

	fs, err := initramfs.Parse(image)
	if err != nil {
		return nil, err
	}
	syscall.SetRootFS(fs)

	sched := proc.NewScheduler(frames)
	pipe.SetScheduler(sched)

	d := trap.NewDispatcher()
	wireVectors(d, sched)

	return &Kernel{Frames: frames, Scheduler: sched, Dispatcher: d, RootFS: fs}, nil
}

// wireVectors installs the fixed exception/timer handlers. Every other
// vector is left unregistered: trap.Dispatcher.Dispatch already panics on
// a lookup miss, which is the desired behavior for an unhandled exception.
func wireVectors(d *trap.Dispatcher, sched *proc.Scheduler) {
	d.Register(vecPageFault, func(frame *trap.InterruptFrame, errorCode uint64, hasErrorCode bool) {
		t := sched.CurrentTask()
		if t == nil {
			panic("boot: page fault with no current task")
		}
		reason := vm.FaultReason{
			Write:   errorCode&0x2 != 0,
			Present: errorCode&0x1 != 0,
			User:    frame.FromUser(),
		}
		outcome := t.Vmem.HandlePageFault(t.AS.Mapper(), faultAddr(frame), reason)
		if outcome != vm.FaultResolved {
			sched.SendSignalTo(t, signal.SIGSEGV)
		}
	})

	d.Register(vecTimer, func(frame *trap.InterruptFrame, errorCode uint64, hasErrorCode bool) {
		sched.Tick()
	})
}

// faultAddr stands in for reading CR2, unavailable in this hosted
// simulation; the harness driving real traps is expected to stash the
// faulting address in Rdi before calling Dispatch, keeping the vm
// package's fault API untouched by a host-specific register convention.
func faultAddr(frame *trap.InterruptFrame) mem.VirtAddr {
	return mem.VirtAddr(frame.Rdi)
}

// Dispatch is the syscall-vector entry point the host's SYSCALL trampoline
// calls once it has built an InterruptFrame for the current task.
func (k *Kernel) Dispatch(frame *trap.InterruptFrame) {
	t := k.Scheduler.CurrentTask()
	syscall.Dispatch(k.Scheduler, t, frame)
}

// NewInit starts pid 1 from the parsed root filesystem's named path,
// wiring stdin/stdout/stderr to tty and registering it as the backing
// device for every subsequent /dev/console or /dev/tty open.
func (k *Kernel) NewInit(path string, tty fdops.Fdops_i, argv, envp [][]byte) (*proc.Task, *defs.Err_t) {
	node, err := k.RootFS.Lookup(path)
	if err != nil {
		return nil, err
	}
	file, ok := node.(*initramfs.File)
	if !ok {
		return nil, defs.Errnoval(defs.EACCES)
	}
	syscall.SetConsole(tty)
	return k.Scheduler.NewInitTask(tty, file.Data(), argv, envp)
}
