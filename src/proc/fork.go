package proc

import (
	"defs"
	"signal"
	"trap"
)

// Fork creates a child task that is a COW-forking copy of t: a forked
// address space (both parent's and child's user-half leaves lose
// Writable, per vm.AddressSpace.Fork's documented semantics), a
// deep-reopened file table, a copy of the signal action table with pending
// signals cleared, and parentFrame copied with the return-value register
// zeroed and the child's resume point set to the instruction right after
// the syscall that invoked fork.
func (t *Task) Fork(sched *Scheduler, parentFrame *trap.InterruptFrame) (*Task, *defs.Err_t) {
	childAS, err := t.AS.Fork(true)
	if err != nil {
		return nil, err
	}

	child := newBareTask(sched.allocPid(), childAS, sched.frames)
	child.parent = t
	child.files = t.cloneOpenFiles()
	child.Signals = cloneSignalsWithoutPending(t.Signals)
	child.sigMask = t.SigMask()
	child.group = t.Group()
	if child.group != nil {
		child.group.add(child)
	}

	childFrame := *parentFrame
	childFrame.Rax = 0
	// Clear the interrupt-enable bit in the copied RFLAGS. Unlike Exec's
	// frame, which has IF set, nothing in this package sets IF again on
	// the child's ResumeFrame.
	childFrame.Rflags &^= rflagsIF
	child.ResumeFrame = &childFrame

	t.addChild(child)

	sched.mu.Lock()
	sched.tasks[child.id] = child
	sched.mu.Unlock()
	sched.PushRunnable(child)

	return child, nil
}

const rflagsIF = 1 << 9

// CloneProcess is Fork with a caller-supplied entry RIP/RSP/argument
// register, used for thread-style clones that start at a function pointer
// rather than resuming at the parent's next instruction.
func (t *Task) CloneProcess(sched *Scheduler, parentFrame *trap.InterruptFrame, entryRIP, entryRSP, arg uint64) (*Task, *defs.Err_t) {
	child, err := t.Fork(sched, parentFrame)
	if err != nil {
		return nil, err
	}
	child.ResumeFrame.Rip = entryRIP
	child.ResumeFrame.Rsp = entryRSP
	child.ResumeFrame.Rdi = arg
	return child, nil
}

func cloneSignalsWithoutPending(src *signal.Delivery) *signal.Delivery {
	return src.CloneActionsOnly()
}
