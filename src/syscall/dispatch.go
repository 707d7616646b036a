// Package syscall is the system-call front end: a single dispatcher mapping
// a number to a decoded-argument method, one small file per call in a
// one-file-per-syscall layout. Every handler returns (int64, *defs.Err_t);
// the dispatcher stores the result (or -errno) in the frame's RAX and drains
// every deliverable pending signal before returning.
package syscall

import (
	"sync"

	"defs"
	"initramfs"
	"proc"
	"trap"
)

// Linux x86_64 syscall ABI numbering.
const (
	sysRead            = 0
	sysWrite           = 1
	sysOpen            = 2
	sysClose           = 3
	sysStat            = 4
	sysFstat           = 5
	sysLstat           = 6
	sysPoll            = 7
	sysLseek           = 8
	sysMmap            = 9
	sysMprotect        = 10
	sysMunmap          = 11
	sysRtSigaction     = 13
	sysRtSigprocmask   = 14
	sysRtSigreturn     = 15
	sysIoctl           = 16
	sysWritev          = 20
	sysDup2            = 33
	sysGetpid          = 39
	sysFork            = 57
	sysExecve          = 59
	sysExit            = 60
	sysWait4           = 61
	sysKill            = 62
	sysUname           = 63
	sysFcntl           = 72
	sysGetcwd          = 79
	sysChdir           = 80
	sysMkdir           = 83
	sysUnlink          = 87
	sysGetppid         = 110
	sysGetpgrp         = 111
	sysArchPrctl       = 158
	sysGettid          = 186
	sysGetdents64      = 217
	sysSetTidAddress   = 218
	sysExitGroup       = 231
	sysMremap          = 25
	sysGetpgid         = 121
	sysSetpgid         = 109
	sysGetrandom       = 318
	sysPipe2           = 293
	sysPipe            = 22
)

var rootFSMu sync.Mutex
var rootFS *initramfs.FS

// SetRootFS installs the parsed initramfs archive used to resolve every
// open/stat/chdir path, called once by the kernel's boot sequence.
func SetRootFS(fs *initramfs.FS) {
	rootFSMu.Lock()
	rootFS = fs
	rootFSMu.Unlock()
}

func currentRootFS() *initramfs.FS {
	rootFSMu.Lock()
	defer rootFSMu.Unlock()
	return rootFS
}

// Dispatch decodes frame's RAX as the syscall number and RDI/RSI/RDX/R10/R8/R9
// as the six argument registers, invokes the matching handler, stores the
// result in RAX, and drains every deliverable pending signal before
// returning: loop until nothing remains deliverable.
func Dispatch(sched *proc.Scheduler, t *proc.Task, frame *trap.InterruptFrame) {
	n := frame.Rax
	a1, a2, a3, a4, a5, a6 := frame.Rdi, frame.Rsi, frame.Rdx, frame.R10, frame.R8, frame.R9

	rc := dispatchOne(sched, t, frame, n, a1, a2, a3, a4, a5, a6)
	frame.Rax = uint64(rc)

	for t.HasPendingSignals() {
		before := *frame
		sched.TryDeliveringSignal(frame)
		if *frame == before {
			// Nothing was delivered: what is still pending is blocked, or
			// the task exited.
			break
		}
	}
}

func dispatchOne(sched *proc.Scheduler, t *proc.Task, frame *trap.InterruptFrame, n, a1, a2, a3, a4, a5, a6 uint64) int64 {
	switch n {
	case sysRead:
		return result(sysReadImpl(t, int(a1), a2, int(a3)))
	case sysWrite:
		return result(sysWriteImpl(t, int(a1), a2, int(a3)))
	case sysWritev:
		return result(sysWritevImpl(t, int(a1), a2, int(a3)))
	case sysOpen:
		return result(sysOpenImpl(t, a1, int32(a2), uint32(a3)))
	case sysClose:
		return result(int64(0), t.CloseOpenFile(int(a1)))
	case sysStat:
		return result(sysStatImpl(t, a1, a2))
	case sysFstat:
		return result(sysFstatImpl(t, int(a1), a2))
	case sysLstat:
		return result(sysStatImpl(t, a1, a2))
	case sysIoctl:
		return result(sysIoctlImpl(t, int(a1), a2, a3))
	case sysPoll:
		return result(sysPollImpl(t, a1, int(a2)))
	case sysLseek:
		return result(0, defs.Errnoval(defs.ESPIPE))
	case sysDup2:
		return result(sysDup2Impl(t, int(a1), int(a2)))
	case sysPipe, sysPipe2:
		return result(sysPipe2Impl(t, a1))
	case sysFcntl:
		return result(sysFcntlImpl(t, int(a1), int32(a2), a3))
	case sysGetdents64:
		return result(sysGetdents64Impl(t, int(a1), a2, int(a3)))
	case sysGetcwd:
		return result(sysGetcwdImpl(t, a1, a2))
	case sysChdir:
		return result(sysChdirImpl(t, a1))
	case sysMkdir, sysUnlink:
		return result(0, defs.Errnoval(defs.ENOSYS)) // initramfs is read-only
	case sysFork:
		return result(sysForkImpl(sched, t, frame))
	case sysExecve:
		return result(sysExecveImpl(t, frame, a1, a2, a3))
	case sysExit, sysExitGroup:
		sched.ExitCurrent(int32(a1))
		return 0
	case sysWait4:
		return result(sysWait4Impl(sched, t, int64(a1), a2, int32(a3)))
	case sysGetpid:
		return int64(t.Pid())
	case sysGettid:
		return int64(t.Pid())
	case sysGetppid:
		if p := t.Parent(); p != nil {
			return int64(p.Pid())
		}
		return 0
	case sysGetpgid, sysGetpgrp:
		if g := t.Group(); g != nil {
			return int64(g.Pgid())
		}
		return 0
	case sysSetpgid:
		return 0 // process-group reassignment is a Non-goal
	case sysSetTidAddress:
		return int64(t.Pid())
	case sysMmap:
		return result(sysMmapImpl(t, a1, a2, int32(a3), int32(a4)))
	case sysMprotect:
		return result(sysMprotectImpl(t, a1, a2, int32(a3)))
	case sysMunmap:
		return result(0, sysMunmapImpl(t, a1, a2))
	case sysMremap:
		return result(0, defs.Errnoval(defs.ENOSYS))
	case sysRtSigaction:
		return result(sysRtSigactionImpl(t, int32(a1), a2, a3))
	case sysRtSigprocmask:
		return result(sysRtSigprocmaskImpl(t, int32(a1), a2, a3))
	case sysRtSigreturn:
		return result(0, sched.Sigreturn(frame))
	case sysKill:
		return result(sysKillImpl(sched, int64(a1), int32(a2)))
	case sysUname:
		return result(sysUnameImpl(t, a1))
	case sysArchPrctl:
		return 0 // no real %fs-base register to reprogram in this hosted simulation
	case sysGetrandom:
		return result(sysGetrandomImpl(t, a1, int(a2), int32(a3)))
	default:
		return -int64(defs.ENOSYS)
	}
}

func result(n int64, err *defs.Err_t) int64 {
	if err != nil {
		return err.Rc()
	}
	return n
}
